package messaging

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/heydoc/booking-platform/internal/conversation"
	"github.com/heydoc/booking-platform/internal/transcribe"
	"github.com/heydoc/booking-platform/pkg/logging"
)

var twilioTracer = otel.Tracer("heydoc.internal.messaging.twilio")

// MediaFetcher downloads webhook media attachments. *TwilioSender
// implements it.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

// Handler bridges Twilio webhooks to the conversation engine. Replies go
// back inline as TwiML, so no outbound API call is needed on the hot path.
type Handler struct {
	authToken   string
	service     conversation.Service
	transcriber transcribe.Transcriber
	media       MediaFetcher
	logger      *logging.Logger
}

// NewHandler creates the webhook handler. transcriber and media may be nil
// when voice notes are disabled.
func NewHandler(authToken string, service conversation.Service, transcriber transcribe.Transcriber, media MediaFetcher, logger *logging.Logger) *Handler {
	if service == nil {
		panic("messaging: conversation service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		authToken:   authToken,
		service:     service,
		transcriber: transcriber,
		media:       media,
		logger:      logger,
	}
}

// TwilioWebhook handles POST /webhooks/twilio.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	if h.authToken != "" {
		if !ValidateTwilioSignature(r, h.authToken, buildAbsoluteURL(r)) {
			h.logger.Warn("invalid twilio signature")
			span.RecordError(errors.New("invalid twilio signature"))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	from := NormalizeE164(webhook.From)
	span.SetAttributes(
		attribute.String("heydoc.twilio.message_sid", webhook.MessageSid),
		attribute.String("heydoc.twilio.from", from),
	)
	if webhook.MessageSid == "" || from == "" {
		h.logger.Error("invalid twilio payload", "from", webhook.From)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	channel := "sms"
	if IsWhatsApp(from) {
		channel = "whatsapp"
	}

	text := strings.TrimSpace(webhook.Body)
	if text == "" {
		text = h.transcribeVoiceNote(r, webhook)
	}

	resp, err := h.service.ProcessMessage(ctx, conversation.MessageRequest{
		UserID:  BareNumber(from),
		Channel: channel,
		Message: text,
	})
	if err != nil {
		h.logger.Error("failed to process webhook turn", "error", err, "message_sid", webhook.MessageSid)
		span.RecordError(err)
		writeTwiML(w, "Désolé, un problème technique est survenu. Pouvez-vous réessayer ?")
		return
	}

	h.logger.Info("twilio webhook handled",
		"message_sid", webhook.MessageSid,
		"channel", channel,
		"action", resp.Action,
	)
	writeTwiML(w, resp.Message)
}

// transcribeVoiceNote recovers the text of an audio attachment. Any failure
// degrades to an empty message, which the engine answers with a re-prompt.
func (h *Handler) transcribeVoiceNote(r *http.Request, webhook *TwilioWebhookRequest) string {
	if h.transcriber == nil || h.media == nil {
		return ""
	}
	mediaURL, contentType := webhook.FirstAudioMedia()
	if mediaURL == "" {
		return ""
	}

	data, err := h.media.FetchMedia(r.Context(), mediaURL)
	if err != nil {
		h.logger.Error("failed to download voice note", "error", err, "message_sid", webhook.MessageSid)
		return ""
	}
	text, err := h.transcriber.Transcribe(r.Context(), transcribe.Audio{
		Data:        data,
		ContentType: contentType,
		Language:    "fr",
	})
	if err != nil {
		h.logger.Error("failed to transcribe voice note", "error", err, "message_sid", webhook.MessageSid)
		return ""
	}
	return text
}

// HealthCheck returns a minimal liveness response.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

func writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		return
	}
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
