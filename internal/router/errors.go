package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// MissingCredentialsError means no provider can ever serve the task with the
// credentials this process was started with. It is raised before any
// network call and is not retried.
type MissingCredentialsError struct {
	Task       provider.TaskType
	Capability provider.Capability
	// Wanted lists the credential names that would have made a provider eligible.
	Wanted []string
}

func (e *MissingCredentialsError) Error() string {
	if len(e.Wanted) == 0 {
		return fmt.Sprintf("no provider declares %s for task %s", e.Capability, e.Task)
	}
	return fmt.Sprintf("no credentials for task %s (%s); set one of: %s",
		e.Task, e.Capability, strings.Join(e.Wanted, ", "))
}

// Attempt is one entry of the attempt history kept for operators.
type Attempt struct {
	Provider string        `json:"provider"`
	Outcome  Outcome       `json:"outcome"`
	Retry    int           `json:"retry"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TerminalFailure is returned once every eligible provider failed or was
// skipped. Its message is deliberately generic; Attempts is for operator logs.
type TerminalFailure struct {
	Task     provider.TaskType
	Attempts []Attempt
}

func (e *TerminalFailure) Error() string {
	return "the request could not be completed by any provider"
}

// Summary renders the attempt history on one line for logs.
func (e *TerminalFailure) Summary() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s#%d=%s", a.Provider, a.Retry, a.Outcome))
	}
	return strings.Join(parts, " ")
}
