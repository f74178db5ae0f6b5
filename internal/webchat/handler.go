package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/heydoc/booking-platform/internal/conversation"
	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/pkg/logging"
)

const channelWebChat = "webchat"

// TranscriptReader reads the active session transcript for a user.
type TranscriptReader interface {
	GetSession(ctx context.Context, userID string) (*session.UserSession, error)
}

// Handler serves the embeddable chat widget over WebSocket with an HTTP
// fallback.
type Handler struct {
	service  conversation.Service
	sessions TranscriptReader
	logger   *logging.Logger
	widgetJS []byte

	mu    sync.RWMutex
	conns map[string]*wsConn // userID -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string           `json:"type"` // "message", "typing", "history", "session", "pong", "error"
	Text      string           `json:"text,omitempty"`
	Role      string           `json:"role,omitempty"`
	Action    string           `json:"action,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified transcript entry for the widget.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a web chat handler. sessions may be nil, in which case
// connections start without history.
func NewHandler(service conversation.Service, sessions TranscriptReader, widgetJS []byte, logger *logging.Logger) *Handler {
	if service == nil {
		panic("webchat: service is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:  service,
		sessions: sessions,
		logger:   logger,
		widgetJS: widgetJS,
		conns:    make(map[string]*wsConn),
	}
}

// generateUserID creates a random widget visitor identifier.
func generateUserID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return "web-" + hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = generateUserID()
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", UserID: userID})

	if history := h.loadHistory(r.Context(), userID); len(history) > 0 {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history})
	}

	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.conns[userID] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.conns[userID] == wsc {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		close(wsc.done)
	}()

	h.logger.Info("webchat: connection opened", "user_id", userID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "user_id", userID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}

		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		h.sendToUser(userID, OutboundMessage{Type: "typing"})
		h.sendToUser(userID, h.reply(r.Context(), userID, msg.Text))
	}
}

func (h *Handler) reply(ctx context.Context, userID, text string) OutboundMessage {
	resp, err := h.service.ProcessMessage(ctx, conversation.MessageRequest{
		UserID:  userID,
		Message: text,
		Channel: channelWebChat,
	})
	if err != nil {
		h.logger.Error("webchat: failed to process message", "error", err, "user_id", userID)
		return OutboundMessage{
			Type: "error",
			Text: "Désolé, une erreur est survenue. Merci de réessayer.",
		}
	}
	return OutboundMessage{
		Type:      "message",
		Role:      "assistant",
		Text:      resp.Message,
		Action:    resp.Action,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (h *Handler) loadHistory(ctx context.Context, userID string) []HistoryMessage {
	if h.sessions == nil {
		return nil
	}
	sess, err := h.sessions.GetSession(ctx, userID)
	if err != nil {
		if !errors.Is(err, session.ErrNoActiveSession) {
			h.logger.Warn("webchat: failed to load history", "error", err, "user_id", userID)
		}
		return nil
	}
	history := make([]HistoryMessage, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		history = append(history, HistoryMessage{
			Role:      m.Role,
			Text:      m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	return history
}

func (h *Handler) sendToUser(userID string, msg OutboundMessage) {
	h.mu.RLock()
	wsc, ok := h.conns[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = websocket.JSON.Send(wsc.conn, msg)
}

// HandleMessage is the HTTP fallback for widgets that cannot open a socket.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = generateUserID()
	}

	reply := h.reply(r.Context(), req.UserID, req.Text)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"user_id": req.UserID,
		"message": reply.Text,
		"action":  reply.Action,
	})
}

// HandleHistory returns the active session transcript for a widget user.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user parameter required", http.StatusBadRequest)
		return
	}

	history := h.loadHistory(r.Context(), userID)
	if history == nil {
		history = []HistoryMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": history})
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}
