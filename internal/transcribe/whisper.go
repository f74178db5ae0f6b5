package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/heydoc/booking-platform/pkg/logging"
)

const defaultWhisperBaseURL = "https://api.openai.com/v1"

var whisperTracer = otel.Tracer("heydoc.internal.transcribe")

// WhisperClient transcribes audio with OpenAI's transcription API.
type WhisperClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

var _ Transcriber = (*WhisperClient)(nil)

// WhisperOption configures a WhisperClient.
type WhisperOption func(*WhisperClient)

// WithWhisperBaseURL points the client at a different endpoint.
func WithWhisperBaseURL(u string) WhisperOption {
	return func(c *WhisperClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithWhisperHTTPClient overrides the HTTP client.
func WithWhisperHTTPClient(hc *http.Client) WhisperOption {
	return func(c *WhisperClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewWhisperClient builds a transcription client.
func NewWhisperClient(apiKey, model string, logger *logging.Logger, opts ...WhisperOption) (*WhisperClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("transcribe: openai api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "whisper-1"
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &WhisperClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultWhisperBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Transcribe uploads the audio as multipart form data and returns the text.
func (c *WhisperClient) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", errors.New("transcribe: empty audio payload")
	}

	ctx, span := whisperTracer.Start(ctx, "transcribe.whisper")
	defer span.End()

	filename := audio.Filename
	if filename == "" {
		filename = "audio.ogg"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("transcribe: failed to build form: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("transcribe: failed to write audio: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("transcribe: failed to write model field: %w", err)
	}
	if audio.Language != "" {
		if err := writer.WriteField("language", audio.Language); err != nil {
			return "", fmt.Errorf("transcribe: failed to write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("transcribe: failed to finish form: %w", err)
	}

	endpoint := c.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("transcribe: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("transcribe: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("transcribe: transcription failed: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		return "", err
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("transcribe: failed to decode response: %w", err)
	}

	text := strings.TrimSpace(parsed.Text)
	c.logger.Info("voice note transcribed", "bytes", len(audio.Data), "chars", len(text))
	return text, nil
}

// StaticTranscriber returns a fixed transcript. It backs tests and local
// development without an API key.
type StaticTranscriber struct {
	Text string
	Err  error
}

var _ Transcriber = (*StaticTranscriber)(nil)

func (s *StaticTranscriber) Transcribe(context.Context, Audio) (string, error) {
	return s.Text, s.Err
}
