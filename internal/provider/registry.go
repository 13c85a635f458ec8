package provider

import (
	"fmt"
	"slices"
	"sort"
)

// Registry is the ordered, read-only provider catalog. Order is by priority,
// ties broken by declaration order, and never changes after construction.
type Registry struct {
	descriptors []Descriptor
	byID        map[string]int
}

// NewRegistry validates and orders the given descriptors.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	ordered := slices.Clone(descriptors)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	byID := make(map[string]int, len(ordered))
	for i, d := range ordered {
		if d.ID == "" {
			return nil, fmt.Errorf("provider at position %d has no id", i)
		}
		if _, dup := byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", d.ID)
		}
		if len(d.Capabilities) == 0 {
			return nil, fmt.Errorf("provider %q declares no capabilities", d.ID)
		}
		if d.Kind == KindRemoteAPI && d.CredentialKey == "" {
			return nil, fmt.Errorf("remote provider %q has no credential key", d.ID)
		}
		byID[d.ID] = i
	}

	return &Registry{descriptors: ordered, byID: byID}, nil
}

// MustRegistry is NewRegistry for static tables.
func MustRegistry(descriptors ...Descriptor) *Registry {
	r, err := NewRegistry(descriptors...)
	if err != nil {
		panic(err)
	}
	return r
}

// All returns a copy of the ordered catalog.
func (r *Registry) All() []Descriptor {
	return slices.Clone(r.descriptors)
}

func (r *Registry) Get(id string) (Descriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.descriptors[i], true
}

func (r *Registry) Len() int { return len(r.descriptors) }

// Credential names used by the default catalog.
const (
	CredGemini    = "GEMINI_API_KEY"
	CredOpenAI    = "OPENAI_API_KEY"
	CredAnthropic = "ANTHROPIC_API_KEY"
)

// DefaultRegistry is the production catalog. Grounded Gemini models come
// first for fact checks; the local models are last-resort fallbacks.
func DefaultRegistry() *Registry {
	return MustRegistry(
		Descriptor{
			ID:            "gemini-flash",
			Priority:      1,
			Capabilities:  []Capability{CapTextAnalysis, CapGroundedSearch},
			CredentialKey: CredGemini,
			Kind:          KindRemoteAPI,
			Model:         "gemini-2.5-flash",
		},
		Descriptor{
			ID:            "gemini-flash-lite",
			Priority:      2,
			Capabilities:  []Capability{CapTextAnalysis, CapGroundedSearch},
			CredentialKey: CredGemini,
			Kind:          KindRemoteAPI,
			Model:         "gemini-2.5-flash-lite",
		},
		Descriptor{
			ID:            "openai-gpt",
			Priority:      3,
			Capabilities:  []Capability{CapTextAnalysis},
			CredentialKey: CredOpenAI,
			Kind:          KindRemoteAPI,
			Model:         "gpt-4o-mini",
		},
		Descriptor{
			ID:            "anthropic-claude",
			Priority:      4,
			Capabilities:  []Capability{CapTextAnalysis},
			CredentialKey: CredAnthropic,
			Kind:          KindRemoteAPI,
			Model:         "claude-sonnet-4-20250514",
		},
		Descriptor{
			ID:           "ollama-local",
			Priority:     9,
			Capabilities: []Capability{CapTextAnalysis},
			Kind:         KindLocalModel,
			Model:        "llama3",
		},
		Descriptor{
			ID:            "openai-tts",
			Priority:      1,
			Capabilities:  []Capability{CapSpeechSynthesis},
			CredentialKey: CredOpenAI,
			Kind:          KindRemoteAPI,
			Model:         "tts-1",
		},
		Descriptor{
			ID:           "piper-local",
			Priority:     9,
			Capabilities: []Capability{CapSpeechSynthesis},
			Kind:         KindLocalModel,
		},
	)
}
