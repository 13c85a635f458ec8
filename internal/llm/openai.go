package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

type OpenAI struct {
	id     string
	model  string
	client *openai.Client
}

// NewOpenAI builds an adapter for d. baseURL overrides the API endpoint
// (OpenAI compatible gateways, tests); empty keeps the default.
func NewOpenAI(d provider.Descriptor, apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		id:     d.ID,
		model:  d.Model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAI) ID() string { return p.id }

func (p *OpenAI) Invoke(ctx context.Context, call provider.Call) (*provider.Output, error) {
	in := BuildMessages(call)
	msgs := make([]openai.ChatCompletionMessage, len(in))
	for i, m := range in {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, ClassifyOpenAI(p.id, err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	if strings.TrimSpace(content) == "" {
		return nil, provider.Transient(p.id, errors.New("empty completion"))
	}

	recordUsage(p.id, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return &provider.Output{Text: content, Model: resp.Model}, nil
}

// ClassifyOpenAI maps go-openai errors. insufficient_quota arrives as a 429
// as well, so the status code alone is enough for the quota class.
func ClassifyOpenAI(id string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		class := provider.ClassifyStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
			class = provider.ClassQuotaExceeded
		}
		return provider.NewError(class, id, fmt.Errorf("openai %d: %w", apiErr.HTTPStatusCode, err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return provider.NewError(provider.ClassifyStatus(reqErr.HTTPStatusCode), id, err)
	}
	return provider.Classify(id, err)
}
