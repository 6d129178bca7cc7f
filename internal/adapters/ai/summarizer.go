package ai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"concierge/internal/domain/memory"
	"concierge/pkg/errors"
	"concierge/pkg/logger"
)

const extractionSystemPrompt = `You distill customer support conversations into durable memory.
Given the previous summary (possibly empty) and a window of recent messages,
respond with a single JSON object and nothing else:
{"summary": string, "facts": [{"key": string, "content": string, "importance": number}],
 "preferences": [...same shape...], "entities": [...same shape...]}
Importance is 0 to 1. Keep entries short and concrete. Do not invent details.`

// Ensure Summarizer implements memory.Extractor
var _ memory.Extractor = (*Summarizer)(nil)

// Summarizer extracts long-term memory from a conversation window using the
// official OpenAI SDK
type Summarizer struct {
	client  openai.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
}

// NewSummarizer creates a memory extractor backed by OpenAI
func NewSummarizer(apiKey, model string, timeout time.Duration) (*Summarizer, error) {
	if apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "openai API key is required")
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &Summarizer{
		client:  client,
		model:   model,
		timeout: timeout,
		log:     logger.Get().With("component", "memory_summarizer", "model", model),
	}, nil
}

// Extract prompts the provider with the previous summary plus the recent
// message window and parses the strict structured output
func (s *Summarizer) Extract(ctx context.Context, previousSummary string, transcript string) (*memory.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var input strings.Builder
	if previousSummary != "" {
		input.WriteString("Previous summary:\n")
		input.WriteString(previousSummary)
		input.WriteString("\n\n")
	}
	input.WriteString("Recent messages:\n")
	input.WriteString(transcript)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt),
			openai.UserMessage(input.String()),
		},
		MaxCompletionTokens: openai.Int(1024),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrProviderUnavailable, err.Error())
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(errors.ErrExternal, "extraction response contains no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var extraction memory.Extraction
	if err := json.Unmarshal([]byte(raw), &extraction); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "extraction output is not valid JSON")
	}
	if extraction.Summary == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "extraction output is missing a summary")
	}

	return &extraction, nil
}
