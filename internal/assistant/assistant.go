// Package assistant wraps the hosted model behind typed, schema-validated
// flows. The flows are prompt templates over a chat completion call; they
// carry no business state of their own, and callers persist only the
// workflow-relevant subset of their output.
package assistant

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Completer abstracts the hosted model call so flows are testable without
// network access.
type Completer interface {
	// Complete sends a system+user prompt pair and returns the raw model
	// output. Implementations should request JSON output.
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAICompleter implements Completer using the OpenAI Chat Completions API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a new OpenAI-backed completer.
func NewOpenAICompleter(apiKey, model string) *OpenAICompleter {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Complete sends the prompt pair with JSON response format.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// promptSet holds the templates for every flow, keyed by flow name.
type promptSet struct {
	ETA      prompt `yaml:"eta"`
	Dispatch prompt `yaml:"dispatch"`
	Claim    prompt `yaml:"claim_draft"`
	Risk     prompt `yaml:"risk"`
}

type prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Service exposes the AI-assisted workflows.
type Service struct {
	completer Completer
	prompts   promptSet
	logger    *slog.Logger
}

// NewService creates a new assistant service using the embedded prompt
// templates.
func NewService(completer Completer, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var prompts promptSet
	if err := yaml.Unmarshal(promptsYAML, &prompts); err != nil {
		return nil, fmt.Errorf("parsing prompt templates: %w", err)
	}

	return &Service{
		completer: completer,
		prompts:   prompts,
		logger:    logger,
	}, nil
}
