package format

import (
	"encoding/json"
	"strings"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// Answer is the structured reply the text adapters ask models for.
type Answer struct {
	Claim   string              `json:"claim"`
	Finding string              `json:"finding"`
	Verdict string              `json:"verdict"`
	Details string              `json:"details"`
	Sources []provider.Citation `json:"sources"`

	// Structured is false when the model ignored the requested shape and the
	// whole reply was kept as free text in Details.
	Structured bool `json:"-"`
}

// ParseAnswer reads a model reply leniently: markdown code fences and text
// around the JSON object are ignored. Replies that are not JSON at all are
// kept verbatim.
func ParseAnswer(raw string) Answer {
	text := strings.TrimSpace(raw)
	text = stripFence(text)

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		var a Answer
		if err := json.Unmarshal([]byte(text[start:end+1]), &a); err == nil && !a.empty() {
			a.Structured = true
			a.Sources = cleanSources(a.Sources)
			return a
		}
	}
	return Answer{Details: text}
}

func (a Answer) empty() bool {
	return a.Claim == "" && a.Finding == "" && a.Verdict == "" && a.Details == ""
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string ("json")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func cleanSources(in []provider.Citation) []provider.Citation {
	var out []provider.Citation
	for _, c := range in {
		c.URL = strings.TrimSpace(c.URL)
		c.Title = strings.TrimSpace(c.Title)
		if c.URL == "" && c.Title == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// mergeCitations puts the provider's own grounding citations first and adds
// the model-reported sources that are not already listed.
func mergeCitations(grounding, reported []provider.Citation) []provider.Citation {
	seen := make(map[string]bool)
	var out []provider.Citation
	for _, list := range [][]provider.Citation{grounding, reported} {
		for _, c := range list {
			key := c.URL
			if key == "" {
				key = "title:" + c.Title
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}
	return out
}
