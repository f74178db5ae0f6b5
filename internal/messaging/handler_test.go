package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/heydoc/booking-platform/internal/conversation"
	"github.com/heydoc/booking-platform/internal/transcribe"
	"github.com/heydoc/booking-platform/pkg/logging"
)

type stubService struct {
	lastMessage conversation.MessageRequest
	resp        *conversation.Response
	err         error
}

func (s *stubService) StartConversation(_ context.Context, req conversation.StartRequest) (*conversation.Response, error) {
	return &conversation.Response{UserID: req.UserID}, nil
}

func (s *stubService) ProcessMessage(_ context.Context, req conversation.MessageRequest) (*conversation.Response, error) {
	s.lastMessage = req
	if s.err != nil {
		return nil, s.err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return &conversation.Response{UserID: req.UserID, Message: "Dans quelle ville ?"}, nil
}

type stubMedia struct {
	data []byte
	url  string
}

func (s *stubMedia) FetchMedia(_ context.Context, mediaURL string) ([]byte, error) {
	s.url = mediaURL
	return s.data, nil
}

func postWebhook(t *testing.T, h *Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.TwilioWebhook(rec, req)
	return rec
}

func TestTwilioWebhookTextTurn(t *testing.T) {
	svc := &stubService{resp: &conversation.Response{
		Action:  conversation.ActionSuggest,
		Message: "Le Dr Simon peut vous recevoir demain.",
	}}
	h := NewHandler("", svc, nil, nil, logging.Default())

	form := url.Values{}
	form.Set("MessageSid", "SM1")
	form.Set("From", "whatsapp:+33612345678")
	form.Set("To", "whatsapp:+33700000000")
	form.Set("Body", "je veux un cardiologue à Paris")

	rec := postWebhook(t, h, form)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("content type = %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "<Message>Le Dr Simon peut vous recevoir demain.</Message>") {
		t.Errorf("twiml = %s", rec.Body.String())
	}
	if svc.lastMessage.UserID != "+33612345678" {
		t.Errorf("user id = %s", svc.lastMessage.UserID)
	}
	if svc.lastMessage.Channel != "whatsapp" {
		t.Errorf("channel = %s", svc.lastMessage.Channel)
	}
}

func TestTwilioWebhookVoiceNote(t *testing.T) {
	svc := &stubService{}
	media := &stubMedia{data: []byte("ogg-bytes")}
	h := NewHandler("", svc, &transcribe.StaticTranscriber{Text: "un dermatologue à Lyon"}, media, logging.Default())

	form := url.Values{}
	form.Set("MessageSid", "SM2")
	form.Set("From", "whatsapp:+33612345678")
	form.Set("To", "whatsapp:+33700000000")
	form.Set("NumMedia", "1")
	form.Set("MediaUrl0", "https://api.twilio.com/media/note")
	form.Set("MediaContentType0", "audio/ogg")

	rec := postWebhook(t, h, form)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if media.url != "https://api.twilio.com/media/note" {
		t.Errorf("media url = %s", media.url)
	}
	if svc.lastMessage.Message != "un dermatologue à Lyon" {
		t.Errorf("engine received %q", svc.lastMessage.Message)
	}
}

func TestTwilioWebhookRejectsBadSignature(t *testing.T) {
	h := NewHandler("secret-token", &stubService{}, nil, nil, logging.Default())

	form := url.Values{}
	form.Set("MessageSid", "SM3")
	form.Set("From", "+33612345678")
	form.Set("Body", "bonjour")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "bogus")
	rec := httptest.NewRecorder()
	h.TwilioWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTwilioWebhookMissingSender(t *testing.T) {
	h := NewHandler("", &stubService{}, nil, nil, logging.Default())

	form := url.Values{}
	form.Set("MessageSid", "SM4")
	form.Set("Body", "bonjour")

	rec := postWebhook(t, h, form)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTwilioWebhookEngineFailureStillReplies(t *testing.T) {
	h := NewHandler("", &stubService{err: context.DeadlineExceeded}, nil, nil, logging.Default())

	form := url.Values{}
	form.Set("MessageSid", "SM5")
	form.Set("From", "+33612345678")
	form.Set("Body", "bonjour")

	rec := postWebhook(t, h, form)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "problème technique") {
		t.Errorf("twiml = %s", rec.Body.String())
	}
}
