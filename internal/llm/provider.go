// Package llm holds the text-analysis adapters. Every adapter turns its
// backend's failures into classified provider errors at this boundary, so
// the router never sees SDK specific error types.
package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// Options carries the endpoints and local model settings adapters need
// beyond a credential.
type Options struct {
	GeminiURL    string
	OpenAIURL    string
	AnthropicURL string
	OllamaURL    string
	OllamaModel  string
	HTTPClient   *http.Client
}

// NewAdapter builds the text adapter for d, picked by the backend named in
// the descriptor id prefix.
func NewAdapter(d provider.Descriptor, apiKey string, opts Options) (provider.Adapter, error) {
	backend, _, _ := strings.Cut(d.ID, "-")
	switch backend {
	case "gemini":
		return NewGemini(d, apiKey, opts.GeminiURL, opts.HTTPClient)
	case "openai":
		return NewOpenAI(d, apiKey, opts.OpenAIURL), nil
	case "anthropic":
		return NewAnthropic(d, apiKey, opts.AnthropicURL), nil
	case "ollama":
		return NewOllama(d, opts.OllamaURL, opts.OllamaModel, opts.HTTPClient), nil
	default:
		return nil, fmt.Errorf("no text backend for provider %q", d.ID)
	}
}
