package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/heydoc/booking-platform/pkg/logging"
)

// Actions an extraction can request from the conversation engine.
const (
	ActionCollectInfo = "collect_info"
	ActionSuggest     = "suggest_appointment"
	ActionConfirm     = "confirm_appointment"
	ActionDecline     = "decline_appointment"
	ActionReset       = "reset"
	ActionGeneral     = "general"
)

// ErrMalformedResponse indicates the model did not return the expected JSON
// object. Callers recover by re-prompting the user.
var ErrMalformedResponse = errors.New("nlu: malformed extraction response")

// CollectedInfo carries the fields recognised in one user turn. Dates stay
// textual here; the conversation engine normalises them.
type CollectedInfo struct {
	SpecialistType string `json:"specialist_type,omitempty"`
	Location       string `json:"location,omitempty"`
	Date           string `json:"date,omitempty"`
	TimeSlot       string `json:"time_slot,omitempty"`
}

// Empty reports whether nothing was recognised.
func (c *CollectedInfo) Empty() bool {
	return c == nil || (c.SpecialistType == "" && c.Location == "" && c.Date == "" && c.TimeSlot == "")
}

// Extraction is the structured reading of one user turn.
type Extraction struct {
	Action    string         `json:"action"`
	Message   string         `json:"message,omitempty"`
	Collected *CollectedInfo `json:"collected_info,omitempty"`
}

// Input is one turn plus its conversational context.
type Input struct {
	Text    string
	History []ChatMessage
	Missing []string
}

// Extractor turns a user turn into an Extraction.
type Extractor interface {
	Extract(ctx context.Context, in Input) (Extraction, error)
}

const extractionSystemPrompt = `Tu es l'assistant de prise de rendez-vous médicaux HeyDoc.
Tu aides les patients à réserver une consultation en collectant trois informations :
la spécialité du médecin, la ville et la date souhaitée (avec une éventuelle plage horaire).

Réponds UNIQUEMENT avec un objet JSON de la forme :
{"action": "...", "message": "...", "collected_info": {"specialist_type": "...", "location": "...", "date": "...", "time_slot": "..."}}

Valeurs possibles pour "action" :
- "collect_info" : il manque encore des informations, "message" pose la question suivante.
- "suggest_appointment" : toutes les informations sont réunies.
- "confirm_appointment" : le patient accepte le rendez-vous proposé.
- "decline_appointment" : le patient refuse le rendez-vous proposé.
- "reset" : le patient veut recommencer à zéro.
- "general" : question générale ou hors sujet, "message" répond brièvement et ramène vers la prise de rendez-vous.

Dans "collected_info", n'inclus que ce que le patient vient de dire. Mets la date
au format ISO (AAAA-MM-JJ) quand tu le peux, sinon recopie l'expression du patient.
Ne donne jamais d'avis médical.`

// LLMExtractor extracts fields with an LLM behind the LLMClient seam.
type LLMExtractor struct {
	client      LLMClient
	model       string
	maxTokens   int32
	temperature float32
	logger      *logging.Logger
}

var _ Extractor = (*LLMExtractor)(nil)

// LLMExtractorOption configures an LLMExtractor.
type LLMExtractorOption func(*LLMExtractor)

// WithExtractorModel overrides the model id passed to the client.
func WithExtractorModel(model string) LLMExtractorOption {
	return func(e *LLMExtractor) {
		if model != "" {
			e.model = model
		}
	}
}

// WithExtractorMaxTokens caps the completion length.
func WithExtractorMaxTokens(n int32) LLMExtractorOption {
	return func(e *LLMExtractor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithExtractorTemperature sets the sampling temperature.
func WithExtractorTemperature(t float32) LLMExtractorOption {
	return func(e *LLMExtractor) {
		if t >= 0 {
			e.temperature = t
		}
	}
}

// NewLLMExtractor creates an extractor over the given client.
func NewLLMExtractor(client LLMClient, logger *logging.Logger, opts ...LLMExtractorOption) *LLMExtractor {
	if client == nil {
		panic("nlu: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &LLMExtractor{
		client:      client,
		maxTokens:   1024,
		temperature: 0.2,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs one turn through the model and decodes its JSON verdict.
func (e *LLMExtractor) Extract(ctx context.Context, in Input) (Extraction, error) {
	messages := append([]ChatMessage(nil), in.History...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: in.Text})

	system := []string{extractionSystemPrompt}
	if len(in.Missing) > 0 {
		system = append(system, "Informations encore manquantes : "+strings.Join(in.Missing, ", ")+".")
	}

	resp, err := e.client.Complete(ctx, LLMRequest{
		Model:        e.model,
		System:       system,
		Messages:     messages,
		MaxTokens:    e.maxTokens,
		Temperature:  e.temperature,
		JSONResponse: true,
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("nlu: extraction failed: %w", err)
	}

	extraction, err := decodeExtraction(resp.Text)
	if err != nil {
		e.logger.Warn("nlu extraction returned malformed JSON",
			"error", err.Error(),
			"text", truncate(resp.Text, 200),
		)
		return Extraction{}, err
	}
	return extraction, nil
}

// decodeExtraction parses the model output, tolerating markdown fences.
func decodeExtraction(text string) (Extraction, error) {
	cleaned := stripJSONFence(text)
	if cleaned == "" {
		return Extraction{}, ErrMalformedResponse
	}
	var extraction Extraction
	if err := json.Unmarshal([]byte(cleaned), &extraction); err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch extraction.Action {
	case ActionCollectInfo, ActionSuggest, ActionConfirm, ActionDecline, ActionReset, ActionGeneral:
		return extraction, nil
	default:
		return Extraction{}, fmt.Errorf("%w: unknown action %q", ErrMalformedResponse, extraction.Action)
	}
}

// stripJSONFence removes a surrounding ```json ... ``` block if present.
func stripJSONFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
