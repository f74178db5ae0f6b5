package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/heydoc/booking-platform/pkg/logging"
)

const defaultMistralBaseURL = "https://api.mistral.ai/v1"

var mistralTracer = otel.Tracer("heydoc.internal.nlu.mistral")

// MistralClient implements LLMClient against Mistral's chat completions API.
type MistralClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

var _ LLMClient = (*MistralClient)(nil)

// MistralOption configures a MistralClient.
type MistralOption func(*MistralClient)

// WithMistralBaseURL points the client at a different endpoint.
func WithMistralBaseURL(u string) MistralOption {
	return func(c *MistralClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithMistralHTTPClient overrides the HTTP client.
func WithMistralHTTPClient(hc *http.Client) MistralOption {
	return func(c *MistralClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewMistralClient builds a client with sane defaults.
func NewMistralClient(apiKey, model string, logger *logging.Logger, opts ...MistralOption) (*MistralClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("nlu: mistral api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "mistral-large-latest"
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &MistralClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultMistralBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type mistralMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mistralRequest struct {
	Model          string           `json:"model"`
	Messages       []mistralMessage `json:"messages"`
	Temperature    *float32         `json:"temperature,omitempty"`
	TopP           *float32         `json:"top_p,omitempty"`
	MaxTokens      *int32           `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type mistralResponse struct {
	Choices []struct {
		Message      mistralMessage `json:"message"`
		FinishReason string         `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int32 `json:"prompt_tokens"`
		CompletionTokens int32 `json:"completion_tokens"`
		TotalTokens      int32 `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a chat completion request, retrying transient failures.
func (c *MistralClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if len(req.Messages) == 0 && len(req.System) == 0 {
		return LLMResponse{}, errors.New("nlu: mistral requires at least one message")
	}

	ctx, span := mistralTracer.Start(ctx, "nlu.mistral.complete")
	defer span.End()

	model := req.Model
	if model == "" {
		model = c.model
	}
	span.SetAttributes(attribute.String("model", model))

	body := mistralRequest{Model: model}
	for _, sys := range req.System {
		if strings.TrimSpace(sys) == "" {
			continue
		}
		body.Messages = append(body.Messages, mistralMessage{Role: ChatRoleSystem, Content: sys})
	}
	for _, msg := range req.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		body.Messages = append(body.Messages, mistralMessage{Role: msg.Role, Content: msg.Content})
	}
	if req.Temperature >= 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	if req.TopP > 0 {
		p := req.TopP
		body.TopP = &p
	}
	if req.MaxTokens > 0 {
		m := req.MaxTokens
		body.MaxTokens = &m
	}
	if req.JSONResponse {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("nlu: failed to marshal mistral request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			break
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return parseMistralResponse(respBody)
			}
			lastErr = fmt.Errorf("nlu: mistral completion failed: status %d: %s",
				resp.StatusCode, strings.TrimSpace(string(respBody)))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				break
			}
		}

		if attempt < 3 {
			sleep := time.Duration(200+rand.Intn(300)) * time.Millisecond
			time.Sleep(sleep)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
	}
	return LLMResponse{}, lastErr
}

func parseMistralResponse(body []byte) (LLMResponse, error) {
	var parsed mistralResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return LLMResponse{}, fmt.Errorf("nlu: failed to decode mistral response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return LLMResponse{}, errors.New("nlu: mistral returned no choices")
	}
	choice := parsed.Choices[0]
	return LLMResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: choice.FinishReason,
		Usage: TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}, nil
}
