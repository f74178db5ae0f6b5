package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ValidateTwilioSignature checks that a webhook request was signed by
// Twilio with our auth token.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := computeSignature(buildSignaturePayload(webhookURL, r.PostForm), authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// buildSignaturePayload concatenates the URL with the sorted form params,
// per Twilio's signing scheme.
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// TwilioWebhookRequest is an incoming Twilio message webhook. Media fields
// carry WhatsApp voice notes and images.
type TwilioWebhookRequest struct {
	MessageSid string
	AccountSid string
	From       string
	To         string
	Body       string
	NumMedia   int
	MediaURLs  []string
	MediaTypes []string
}

// ParseTwilioWebhook decodes the webhook form body.
func ParseTwilioWebhook(r *http.Request) (*TwilioWebhookRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse form: %w", err)
	}

	req := &TwilioWebhookRequest{
		MessageSid: r.FormValue("MessageSid"),
		AccountSid: r.FormValue("AccountSid"),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		Body:       r.FormValue("Body"),
	}
	if n, err := strconv.Atoi(r.FormValue("NumMedia")); err == nil && n > 0 {
		req.NumMedia = n
		for i := 0; i < n; i++ {
			req.MediaURLs = append(req.MediaURLs, r.FormValue(fmt.Sprintf("MediaUrl%d", i)))
			req.MediaTypes = append(req.MediaTypes, r.FormValue(fmt.Sprintf("MediaContentType%d", i)))
		}
	}
	return req, nil
}

// FirstAudioMedia returns the URL and content type of the first audio
// attachment, or empty strings when the message carries none.
func (w *TwilioWebhookRequest) FirstAudioMedia() (string, string) {
	for i, ct := range w.MediaTypes {
		if strings.HasPrefix(ct, "audio/") {
			return w.MediaURLs[i], ct
		}
	}
	return "", ""
}
