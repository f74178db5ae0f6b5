package conversation

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/heydoc/booking-platform/internal/transcribe"
	"github.com/heydoc/booking-platform/pkg/logging"
)

// maxAudioBytes caps voice note uploads.
const maxAudioBytes = 16 << 20

// Handler exposes the booking bot over HTTP.
type Handler struct {
	service     Service
	transcriber transcribe.Transcriber
	logger      *logging.Logger
}

// NewHandler creates a conversation handler. transcriber may be nil when
// voice notes are disabled.
func NewHandler(service Service, transcriber transcribe.Transcriber, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:     service,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Start handles POST /bot/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode start request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Channel == "" {
		req.Channel = "api"
	}

	resp, err := h.service.StartConversation(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to start conversation", "error", err)
		http.Error(w, "Failed to start conversation", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// Message handles POST /bot/message.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Channel == "" {
		req.Channel = "api"
	}

	resp, err := h.service.ProcessMessage(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to process message", "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Audio handles POST /bot/audio: a multipart voice note is transcribed and
// run through the engine as a normal turn. The recognised text comes back
// in the response so clients can echo it.
func (h *Handler) Audio(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		http.Error(w, "Voice messages are not enabled", http.StatusNotImplemented)
		return
	}

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		h.logger.Error("failed to parse audio upload", "error", err)
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}

	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		h.logger.Error("failed to read audio upload", "error", err)
		http.Error(w, "Failed to read audio", http.StatusBadRequest)
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "fr"
	}

	text, err := h.transcriber.Transcribe(r.Context(), transcribe.Audio{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Language:    language,
	})
	if err != nil {
		h.logger.Error("failed to transcribe voice note", "error", err)
		http.Error(w, "Failed to transcribe audio", http.StatusBadGateway)
		return
	}

	channel := r.FormValue("channel")
	if channel == "" {
		channel = "voice"
	}

	resp, err := h.service.ProcessMessage(r.Context(), MessageRequest{
		UserID:  userID,
		Channel: channel,
		Message: text,
	})
	if err != nil {
		h.logger.Error("failed to process voice turn", "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	resp.Transcript = text
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
