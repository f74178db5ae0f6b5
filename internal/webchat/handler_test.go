package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/heydoc/booking-platform/internal/conversation"
	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/pkg/logging"
)

// mockService echoes a canned reply and records requests.
type mockService struct {
	messages []conversation.MessageRequest
	reply    string
	err      error
}

func (m *mockService) StartConversation(_ context.Context, req conversation.StartRequest) (*conversation.Response, error) {
	return &conversation.Response{UserID: req.UserID, Message: m.reply}, m.err
}

func (m *mockService) ProcessMessage(_ context.Context, req conversation.MessageRequest) (*conversation.Response, error) {
	m.messages = append(m.messages, req)
	if m.err != nil {
		return nil, m.err
	}
	return &conversation.Response{
		UserID:  req.UserID,
		Action:  conversation.ActionCollectInfo,
		Message: m.reply,
	}, nil
}

// mockSessions serves a fixed transcript per user.
type mockSessions struct {
	transcripts map[string][]session.Message
}

func (m *mockSessions) GetSession(_ context.Context, userID string) (*session.UserSession, error) {
	msgs, ok := m.transcripts[userID]
	if !ok {
		return nil, session.ErrNoActiveSession
	}
	return &session.UserSession{UserID: userID, Messages: msgs}, nil
}

func TestGenerateUserID(t *testing.T) {
	u1 := generateUserID()
	u2 := generateUserID()
	assert.NotEmpty(t, u1)
	assert.NotEqual(t, u1, u2)
	assert.True(t, strings.HasPrefix(u1, "web-"))
}

func TestHandleMessageHTTP(t *testing.T) {
	svc := &mockService{reply: "Quelle spécialité recherchez-vous ?"}
	h := NewHandler(svc, nil, []byte("// widget"), logging.New("error"))

	body := `{"user_id":"web-abc","text":"Bonjour"}`
	req := httptest.NewRequest(http.MethodPost, "/webchat/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.HandleMessage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.messages, 1)
	assert.Equal(t, "web-abc", svc.messages[0].UserID)
	assert.Equal(t, channelWebChat, svc.messages[0].Channel)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "web-abc", resp["user_id"])
	assert.Equal(t, "Quelle spécialité recherchez-vous ?", resp["message"])
}

func TestHandleMessageHTTPAssignsUserID(t *testing.T) {
	svc := &mockService{reply: "Bonjour !"}
	h := NewHandler(svc, nil, nil, logging.New("error"))

	req := httptest.NewRequest(http.MethodPost, "/webchat/message", strings.NewReader(`{"text":"Bonjour"}`))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp["user_id"], "web-"))
}

func TestHandleMessageHTTPRejectsEmptyText(t *testing.T) {
	h := NewHandler(&mockService{}, nil, nil, logging.New("error"))

	req := httptest.NewRequest(http.MethodPost, "/webchat/message", strings.NewReader(`{"text":"  "}`))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMessageHTTPServiceError(t *testing.T) {
	svc := &mockService{err: errors.New("boom")}
	h := NewHandler(svc, nil, nil, logging.New("error"))

	req := httptest.NewRequest(http.MethodPost, "/webchat/message", strings.NewReader(`{"user_id":"web-abc","text":"Bonjour"}`))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["message"], "erreur")
}

func TestHandleHistory(t *testing.T) {
	sessions := &mockSessions{transcripts: map[string][]session.Message{
		"web-abc": {
			{Role: "user", Content: "Bonjour", Timestamp: time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC)},
			{Role: "assistant", Content: "Bonjour !", Timestamp: time.Date(2025, 2, 15, 12, 0, 1, 0, time.UTC)},
		},
	}}
	h := NewHandler(&mockService{}, sessions, nil, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/webchat/history?user=web-abc", nil)
	rec := httptest.NewRecorder()
	h.HandleHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "user", resp.Messages[0].Role)
	assert.Equal(t, "Bonjour", resp.Messages[0].Text)
}

func TestHandleHistoryUnknownUser(t *testing.T) {
	h := NewHandler(&mockService{}, &mockSessions{}, nil, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/webchat/history?user=web-unknown", nil)
	rec := httptest.NewRecorder()
	h.HandleHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Messages)
}

func TestHandleHistoryMissingUser(t *testing.T) {
	h := NewHandler(&mockService{}, nil, nil, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/webchat/history", nil)
	rec := httptest.NewRecorder()
	h.HandleHistory(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWidgetJS(t *testing.T) {
	h := NewHandler(&mockService{}, nil, []byte("// widget"), logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/webchat/widget.js", nil)
	rec := httptest.NewRecorder()
	h.HandleWidgetJS(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
	assert.Equal(t, "// widget", rec.Body.String())
}

func TestWebSocketRoundTrip(t *testing.T) {
	svc := &mockService{reply: "Quelle spécialité recherchez-vous ?"}
	h := NewHandler(svc, nil, nil, logging.New("error"))

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=web-ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	var hello OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &hello))
	assert.Equal(t, "session", hello.Type)
	assert.Equal(t, "web-ws", hello.UserID)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "message", Text: "Bonjour"}))

	var typing, reply OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &typing))
	assert.Equal(t, "typing", typing.Type)
	require.NoError(t, websocket.JSON.Receive(conn, &reply))
	assert.Equal(t, "message", reply.Type)
	assert.Equal(t, "Quelle spécialité recherchez-vous ?", reply.Text)
	assert.Equal(t, "assistant", reply.Role)
}

func TestWebSocketPing(t *testing.T) {
	h := NewHandler(&mockService{}, nil, nil, logging.New("error"))

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=web-ping"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	var hello OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &hello))

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "ping"}))

	var pong OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &pong))
	assert.Equal(t, "pong", pong.Type)
}
