package router

import "github.com/nikhilbhutani/factrouter/internal/provider"

// State is a fallback executor state.
type State string

const (
	StateTryNext      State = "TRY_NEXT"
	StateRetrySame    State = "RETRY_SAME"
	StateSuccess      State = "SUCCESS"
	StateExhaustedAll State = "EXHAUSTED_ALL"
)

// Terminal reports whether no further attempt follows.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateExhaustedAll
}

// Outcome is the classified result of looking at one provider.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeSkipped     Outcome = "skipped_exhausted"
	OutcomeQuota       Outcome = "quota_exceeded"
	OutcomeTransient   Outcome = "transient"
	OutcomeAuth        Outcome = "auth"
	OutcomeUnsupported Outcome = "unsupported_capability"
)

// OutcomeOf maps an adapter error onto an outcome. Only the canonical
// classes are looked at.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	switch provider.ClassOf(err) {
	case provider.ClassQuotaExceeded:
		return OutcomeQuota
	case provider.ClassTransient:
		return OutcomeTransient
	case provider.ClassUnsupportedCapability:
		return OutcomeUnsupported
	default:
		return OutcomeAuth
	}
}

// MarksExhausted is true only for quota-class failures.
func (o Outcome) MarksExhausted() bool {
	return o == OutcomeQuota
}

// Cursor is the executor position: state, provider index, retries spent on it.
type Cursor struct {
	State State
	Index int
	Retry int
}

// Policy bounds the walk.
type Policy struct {
	Providers  int
	MaxRetries int
}

// Transition is the pure state function of the fallback chain.
func Transition(cur Cursor, out Outcome, p Policy) Cursor {
	if cur.State.Terminal() {
		return cur
	}

	switch out {
	case OutcomeSuccess:
		return Cursor{State: StateSuccess, Index: cur.Index, Retry: cur.Retry}
	case OutcomeTransient:
		if cur.Retry < p.MaxRetries {
			return Cursor{State: StateRetrySame, Index: cur.Index, Retry: cur.Retry + 1}
		}
	}

	next := cur.Index + 1
	if next >= p.Providers {
		return Cursor{State: StateExhaustedAll, Index: cur.Index, Retry: cur.Retry}
	}
	return Cursor{State: StateTryNext, Index: next}
}
