package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/pkg/tokenizer"
)

// DefaultOllamaURL is where a local ollama daemon listens by default.
const DefaultOllamaURL = "http://localhost:11434"

// Ollama talks to a model served next to the process. It needs no
// credential and has no quota; a stopped daemon surfaces as a transient
// connection error.
type Ollama struct {
	id         string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewOllama(d provider.Descriptor, baseURL, model string, client *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = d.Model
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &Ollama{
		id:         d.ID,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

func (p *Ollama) ID() string { return p.id }

type ollamaChatReq struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format,omitempty"`
}

type ollamaChatResp struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error"`
}

func (p *Ollama) Invoke(ctx context.Context, call provider.Call) (*provider.Output, error) {
	req := ollamaChatReq{
		Model:    p.model,
		Messages: BuildMessages(call),
		Stream:   false,
		Format:   "json",
	}

	var resp ollamaChatResp
	if err := postJSON(ctx, p.httpClient, p.id, p.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, provider.Classify(p.id, errors.New(resp.Error))
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return nil, provider.Transient(p.id, errors.New("empty answer"))
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	// prompt_eval_count is omitted when the prompt was served from cache
	recordUsage(p.id, model,
		tokenizer.OrEstimate(resp.PromptEvalCount, promptText(req.Messages)),
		tokenizer.OrEstimate(resp.EvalCount, resp.Message.Content))
	return &provider.Output{Text: resp.Message.Content, Model: model}, nil
}
