// Package tts holds the speech-synthesis adapters. Both take the call
// content as the text to speak and return audio bytes.
package tts

import (
	"fmt"
	"strings"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// Options configures the speech backends.
type Options struct {
	OpenAIURL   string
	OpenAIVoice string
	PiperBin    string
	PiperModel  string
}

// NewAdapter builds the speech adapter for d from its id prefix.
func NewAdapter(d provider.Descriptor, apiKey string, opts Options) (provider.Adapter, error) {
	backend, _, _ := strings.Cut(d.ID, "-")
	switch backend {
	case "openai":
		return NewOpenAI(d, apiKey, opts.OpenAIURL, opts.OpenAIVoice), nil
	case "piper":
		return NewPiper(d, opts.PiperBin, opts.PiperModel), nil
	default:
		return nil, fmt.Errorf("no speech backend for provider %q", d.ID)
	}
}
