// Package provider holds the contracts shared by the router and every
// concrete inference backend: descriptors, capabilities, task types, the
// adapter interface and the canonical error classes.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Capability is a declared ability of a provider.
type Capability string

const (
	CapTextAnalysis    Capability = "TEXT_ANALYSIS"
	CapGroundedSearch  Capability = "SEARCH_GROUNDED_ANALYSIS"
	CapSpeechSynthesis Capability = "SPEECH_SYNTHESIS"
)

// Kind tells remote APIs apart from models running next to the process.
type Kind string

const (
	KindRemoteAPI  Kind = "REMOTE_API"
	KindLocalModel Kind = "LOCAL_MODEL"
)

// Descriptor is the immutable catalog entry for one provider.
type Descriptor struct {
	ID            string       `json:"id"`
	Priority      int          `json:"priority"`
	Capabilities  []Capability `json:"capabilities"`
	CredentialKey string       `json:"credential_key,omitempty"`
	Kind          Kind         `json:"kind"`
	Model         string       `json:"model,omitempty"`
}

// Has reports whether the descriptor declares c. A grounded provider also
// satisfies a plain text-analysis requirement.
func (d Descriptor) Has(c Capability) bool {
	for _, own := range d.Capabilities {
		if own == c {
			return true
		}
		if c == CapTextAnalysis && own == CapGroundedSearch {
			return true
		}
	}
	return false
}

// Grounded reports whether the provider can verify claims against search results.
func (d Descriptor) Grounded() bool {
	return d.Has(CapGroundedSearch)
}

// TaskType is the kind of work a request asks for.
type TaskType string

const (
	TaskFactCheck TaskType = "FACT_CHECK"
	TaskAnalysis  TaskType = "ANALYSIS"
	TaskSpeech    TaskType = "SPEECH"
)

// Requirement describes what a task needs from a provider.
type Requirement struct {
	// Required must be declared by every candidate.
	Required Capability
	// Preferred, when set, is the first ordering key: providers declaring it
	// sort ahead of the rest regardless of priority.
	Preferred Capability
}

var requirements = map[TaskType]Requirement{
	TaskFactCheck: {Required: CapTextAnalysis, Preferred: CapGroundedSearch},
	TaskAnalysis:  {Required: CapTextAnalysis},
	TaskSpeech:    {Required: CapSpeechSynthesis},
}

// RequirementFor returns the capability requirement of a task type.
func RequirementFor(t TaskType) (Requirement, error) {
	req, ok := requirements[t]
	if !ok {
		return Requirement{}, fmt.Errorf("unknown task type %q", t)
	}
	return req, nil
}

// ParseTaskType accepts the wire spelling in any case.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := RequirementFor(t); err != nil {
		return "", err
	}
	return t, nil
}

// TaskTypes lists every known task type in a stable order.
func TaskTypes() []TaskType {
	return []TaskType{TaskFactCheck, TaskAnalysis, TaskSpeech}
}

// Mode selects between the compact and the expanded rendering.
type Mode string

const (
	ModeSummary Mode = "SUMMARY"
	ModeDetail  Mode = "DETAIL"
)

// ParseMode defaults an empty value to SUMMARY.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case "":
		return ModeSummary, nil
	case ModeSummary, ModeDetail:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Call is what the executor hands to an adapter for one attempt.
type Call struct {
	Task     TaskType
	Mode     Mode
	Content  string
	Language string
	// Previous carries the earlier answer when a detail follow-up asks the
	// provider to elaborate on it.
	Previous string
}

// Citation is one source backing a finding.
type Citation struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// Output is a successful adapter result.
type Output struct {
	Text        string
	Citations   []Citation
	Audio       []byte
	ContentType string
	Model       string
}

// Adapter is implemented by every concrete provider integration. Invoke must
// return either an Output or an error classified with one of the canonical
// classes (see Error).
type Adapter interface {
	ID() string
	Invoke(ctx context.Context, call Call) (*Output, error)
}
