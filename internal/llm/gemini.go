package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/pkg/tokenizer"
)

// DefaultGeminiURL is the public Generative Language API. The client adds
// the API version itself.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com/"

// Gemini calls generateContent with the google_search tool enabled, so the
// model answers from live search results and reports them as grounding
// chunks.
type Gemini struct {
	id       string
	model    string
	grounded bool
	client   *genai.Client
}

func NewGemini(d provider.Descriptor, apiKey, baseURL string, client *http.Client) (*Gemini, error) {
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	gc, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  client,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client for %s: %w", d.ID, err)
	}
	return &Gemini{
		id:       d.ID,
		model:    d.Model,
		grounded: d.Grounded(),
		client:   gc,
	}, nil
}

func (g *Gemini) ID() string { return g.id }

func (g *Gemini) Invoke(ctx context.Context, call provider.Call) (*provider.Output, error) {
	system, msgs := splitSystem(BuildMessages(call))

	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if g.grounded {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, classifyGemini(g.id, err)
	}

	if len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return nil, provider.Auth(g.id, errors.New(reason))
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p != nil {
				text.WriteString(p.Text)
			}
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, provider.Transient(g.id, fmt.Errorf("empty answer (finish reason %s)", cand.FinishReason))
	}

	var citations []provider.Citation
	if cand.GroundingMetadata != nil {
		seen := make(map[string]bool)
		for _, c := range cand.GroundingMetadata.GroundingChunks {
			if c == nil || c.Web == nil || c.Web.URI == "" || seen[c.Web.URI] {
				continue
			}
			seen[c.Web.URI] = true
			citations = append(citations, provider.Citation{Title: c.Web.Title, URL: c.Web.URI})
		}
	}

	model := resp.ModelVersion
	if model == "" {
		model = g.model
	}
	var promptTokens, outputTokens int
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	recordUsage(g.id, model,
		tokenizer.OrEstimate(promptTokens, promptText(msgs)),
		tokenizer.OrEstimate(outputTokens, text.String()))
	return &provider.Output{Text: text.String(), Citations: citations, Model: model}, nil
}

// geminiTransientStatus are the RPC status names Google uses for failures
// worth retrying.
var geminiTransientStatus = map[string]bool{
	"UNAVAILABLE":       true,
	"DEADLINE_EXCEEDED": true,
	"INTERNAL":          true,
	"ABORTED":           true,
}

// classifyGemini maps SDK errors. The RPC status name wins when present,
// then the HTTP code, then the message wording for ambiguous 400/403s.
func classifyGemini(id string, err error) error {
	apiErr, ok := asGeminiAPIError(err)
	if !ok {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			// a body cut short mid-stream is a network problem, not a contract one
			return provider.Transient(id, err)
		}
		return provider.Classify(id, err)
	}

	status := strings.ToUpper(apiErr.Status)
	var class provider.Class
	switch {
	case status == "RESOURCE_EXHAUSTED":
		class = provider.ClassQuotaExceeded
	case geminiTransientStatus[status]:
		class = provider.ClassTransient
	case apiErr.Code != 0:
		class = provider.ClassifyStatus(apiErr.Code)
	default:
		class = provider.ClassAuth
	}
	if class == provider.ClassAuth && provider.ClassifyMessage(apiErr.Message) == provider.ClassQuotaExceeded {
		class = provider.ClassQuotaExceeded
	}
	return provider.NewError(class, id, fmt.Errorf("gemini %d %s: %s", apiErr.Code, apiErr.Status, apiErr.Message))
}

func asGeminiAPIError(err error) (genai.APIError, bool) {
	var val genai.APIError
	if errors.As(err, &val) {
		return val, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}
