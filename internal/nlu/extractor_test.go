package nlu

import (
	"context"
	"errors"
	"testing"

	"github.com/heydoc/booking-platform/pkg/logging"
)

type stubLLM struct {
	resp LLMResponse
	err  error
	last LLMRequest
}

func (s *stubLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.last = req
	return s.resp, s.err
}

func TestLLMExtractorParsesResponse(t *testing.T) {
	stub := &stubLLM{resp: LLMResponse{
		Text: `{"action":"collect_info","message":"Dans quelle ville ?","collected_info":{"specialist_type":"Cardiologue"}}`,
	}}
	e := NewLLMExtractor(stub, logging.Default())

	out, err := e.Extract(context.Background(), Input{
		Text:    "je cherche un cardiologue",
		Missing: []string{"location", "dateRange"},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.Action != ActionCollectInfo {
		t.Fatalf("action = %s", out.Action)
	}
	if out.Collected == nil || out.Collected.SpecialistType != "Cardiologue" {
		t.Fatalf("collected = %+v", out.Collected)
	}

	if !stub.last.JSONResponse {
		t.Fatal("expected a JSON-mode request")
	}
	if len(stub.last.System) != 2 {
		t.Fatalf("system prompts = %d, want prompt plus missing-fields note", len(stub.last.System))
	}
	if got := stub.last.Messages[len(stub.last.Messages)-1]; got.Role != ChatRoleUser {
		t.Fatalf("last message role = %s", got.Role)
	}
}

func TestLLMExtractorStripsMarkdownFence(t *testing.T) {
	stub := &stubLLM{resp: LLMResponse{
		Text: "```json\n{\"action\":\"confirm_appointment\"}\n```",
	}}
	e := NewLLMExtractor(stub, logging.Default())

	out, err := e.Extract(context.Background(), Input{Text: "oui"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.Action != ActionConfirm {
		t.Fatalf("action = %s", out.Action)
	}
}

func TestLLMExtractorMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"prose", "je ne peux pas répondre en JSON"},
		{"empty", ""},
		{"unknown action", `{"action":"dance"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubLLM{resp: LLMResponse{Text: tt.text}}
			e := NewLLMExtractor(stub, logging.Default())

			_, err := e.Extract(context.Background(), Input{Text: "bonjour"})
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("err = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestLLMExtractorPropagatesClientError(t *testing.T) {
	stub := &stubLLM{err: errors.New("upstream down")}
	e := NewLLMExtractor(stub, logging.Default())

	_, err := e.Extract(context.Background(), Input{Text: "bonjour"})
	if err == nil || errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want transport error", err)
	}
}
