// Package format renders routed results for end users: localized labels,
// a short summary or a sourced detail view, the reduced-confidence banner,
// and chunking to the transport's message size.
package format

import (
	"fmt"
	"strings"

	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/internal/router"
	"github.com/nikhilbhutani/factrouter/pkg/chunker"
)

// summarySentences caps the verdict shown in SUMMARY mode.
const summarySentences = 3

// Payload is what the caller hands to its transport.
type Payload struct {
	ResultID   string        `json:"result_id,omitempty"`
	ProviderID string        `json:"provider_id,omitempty"`
	Language   string        `json:"language"`
	Mode       provider.Mode `json:"mode,omitempty"`
	Degraded   bool          `json:"degraded"`
	RTL        bool          `json:"rtl,omitempty"`
	Chunks     []string      `json:"chunks"`
}

type Formatter struct {
	chunks chunker.Chunker
}

// New returns a Formatter cutting output into chunks of at most limit runes.
func New(limit int) *Formatter {
	opts := chunker.DefaultOptions()
	if limit > 0 {
		opts.Limit = limit
	}
	return &Formatter{chunks: chunker.New(opts)}
}

// Format renders res for the mode and language of req.
func (f *Formatter) Format(resultID string, res *router.Result, req router.Request) Payload {
	labels, tag := LabelsFor(req.Language)
	answer := ParseAnswer(res.Content)

	var paras []string
	if res.Degraded {
		paras = append(paras, labels.Degraded)
	}
	if req.Mode == provider.ModeDetail {
		paras = append(paras, detail(labels, answer, res.Citations)...)
	} else {
		paras = append(paras, summary(labels, answer)...)
	}

	return Payload{
		ResultID:   resultID,
		ProviderID: res.ProviderID,
		Language:   tag.String(),
		Mode:       req.Mode,
		Degraded:   res.Degraded,
		RTL:        labels.RTL,
		Chunks:     f.split(paras),
	}
}

// Message renders a fixed localized notice, e.g. Labels.Failure.
func (f *Formatter) Message(lang string, pick func(Labels) string) Payload {
	labels, tag := LabelsFor(lang)
	return Payload{
		Language: tag.String(),
		RTL:      labels.RTL,
		Chunks:   f.split([]string{pick(labels)}),
	}
}

func (f *Formatter) split(paras []string) []string {
	chunks := f.chunks.Chunk(strings.Join(paras, "\n\n"))
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func summary(l Labels, a Answer) []string {
	if !a.Structured {
		return []string{line(l.Verdict, firstSentences(a.Details, summarySentences))}
	}
	var paras []string
	if a.Claim != "" {
		paras = append(paras, line(l.Claim, a.Claim))
	}
	if a.Finding != "" {
		paras = append(paras, line(l.Finding, a.Finding))
	}
	verdict := a.Verdict
	if verdict == "" {
		verdict = a.Finding
	}
	if verdict != "" {
		paras = append(paras, line(l.Verdict, firstSentences(verdict, summarySentences)))
	}
	return paras
}

func detail(l Labels, a Answer, grounding []provider.Citation) []string {
	var paras []string
	if a.Structured {
		if a.Claim != "" {
			paras = append(paras, line(l.Claim, a.Claim))
		}
		if a.Finding != "" {
			paras = append(paras, line(l.Finding, a.Finding))
		}
		if a.Verdict != "" {
			paras = append(paras, line(l.Verdict, a.Verdict))
		}
	}
	if a.Details != "" {
		paras = append(paras, l.Details+":")
		paras = append(paras, chunker.Paragraphs(a.Details)...)
	}

	paras = append(paras, l.Sources+":")
	sources := mergeCitations(grounding, a.Sources)
	if len(sources) == 0 {
		paras = append(paras, l.NoSources)
		return paras
	}
	// one paragraph per source so a long list can be chunked between entries
	for i, c := range sources {
		paras = append(paras, citation(i+1, c))
	}
	return paras
}

func citation(n int, c provider.Citation) string {
	switch {
	case c.Title == "":
		return fmt.Sprintf("%d. %s", n, c.URL)
	case c.URL == "":
		return fmt.Sprintf("%d. %s", n, c.Title)
	default:
		return fmt.Sprintf("%d. %s\n%s", n, c.Title, c.URL)
	}
}

func line(label, value string) string {
	return label + ": " + strings.TrimSpace(value)
}

func firstSentences(text string, n int) string {
	sentences := chunker.Sentences(strings.Join(chunker.Paragraphs(text), " "))
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	return strings.Join(sentences, " ")
}
