package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

const anthropicMaxTokens = 4096

type Anthropic struct {
	id     string
	model  string
	client anthropic.Client
}

func NewAnthropic(d provider.Descriptor, apiKey, baseURL string) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries belong to the router
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{
		id:     d.ID,
		model:  d.Model,
		client: anthropic.NewClient(opts...),
	}
}

func (p *Anthropic) ID() string { return p.id }

func (p *Anthropic) Invoke(ctx context.Context, call provider.Call) (*provider.Output, error) {
	system, rest := splitSystem(BuildMessages(call))

	msgs := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		switch m.Role {
		case "user":
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropic(p.id, err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(content.String()) == "" {
		return nil, provider.Transient(p.id, fmt.Errorf("empty answer (stop reason %s)", resp.StopReason))
	}

	recordUsage(p.id, string(resp.Model), int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	return &provider.Output{Text: content.String(), Model: string(resp.Model)}, nil
}

// classifyAnthropic maps SDK errors. 529 (overloaded) falls in the 5xx
// transient range.
func classifyAnthropic(id string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		class := provider.ClassifyStatus(apiErr.StatusCode)
		if class == provider.ClassAuth && provider.ClassifyMessage(apiErr.Error()) == provider.ClassQuotaExceeded {
			// "credit balance is too low" comes back as a 400
			class = provider.ClassQuotaExceeded
		}
		return provider.NewError(class, id, err)
	}
	return provider.Classify(id, err)
}
