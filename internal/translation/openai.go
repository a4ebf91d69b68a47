package translation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the online translator
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAITranslator translates with a chat completion model
type OpenAITranslator struct {
	client *openai.Client
	model  string
	apiKey string
}

// NewOpenAITranslator creates the online backend. A missing API key is not
// an error: HasCredentials reports it and the router skips this backend.
func NewOpenAITranslator(config OpenAIConfig) *OpenAITranslator {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &OpenAITranslator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
		apiKey: config.APIKey,
	}
}

// HasCredentials reports whether an API key is configured
func (t *OpenAITranslator) HasCredentials() bool {
	return strings.TrimSpace(t.apiKey) != ""
}

// Translate asks the model for a plain translation of text
func (t *OpenAITranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if !t.HasCredentials() {
		return "", &Error{Backend: "online", Err: fmt.Errorf("no API key configured")}
	}

	req := openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"Translate the user's message from %s to %s. Reply with the translation only, without quotes or notes.",
					sourceLang, targetLang),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	}

	resp, err := t.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &Error{Backend: "online", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Backend: "online", Err: fmt.Errorf("empty completion")}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
