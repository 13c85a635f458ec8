package router

import (
	"sort"
	"strings"

	"github.com/nikhilbhutani/factrouter/internal/provider"
)

// Credentials is the flat name -> secret set resolved once at startup.
type Credentials map[string]string

// Has reports whether a non-blank secret is present for name.
func (c Credentials) Has(name string) bool {
	return strings.TrimSpace(c[name]) != ""
}

// Names lists the credential names that are set, sorted.
func (c Credentials) Names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		if c.Has(k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// ResolveCredentials keeps the providers that can actually be called: local
// models always, remote ones only when their credential is present. Input
// order is preserved.
func ResolveCredentials(providers []provider.Descriptor, creds Credentials) []provider.Descriptor {
	out := make([]provider.Descriptor, 0, len(providers))
	for _, d := range providers {
		if d.Kind == provider.KindLocalModel || creds.Has(d.CredentialKey) {
			out = append(out, d)
		}
	}
	return out
}

// FilterByTask keeps providers declaring the task's required capability and
// orders them by two keys, explicitly:
//
//  1. capability tier: providers with the task's preferred capability first
//     (for fact checks, search grounding outranks raw priority);
//  2. priority, lower first, ties keeping input order.
func FilterByTask(providers []provider.Descriptor, task provider.TaskType) ([]provider.Descriptor, error) {
	req, err := provider.RequirementFor(task)
	if err != nil {
		return nil, err
	}

	out := make([]provider.Descriptor, 0, len(providers))
	for _, d := range providers {
		if d.Has(req.Required) {
			out = append(out, d)
		}
	}

	tier := func(d provider.Descriptor) int {
		if req.Preferred != "" && d.Has(req.Preferred) {
			return 0
		}
		return 1
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := tier(out[i]), tier(out[j])
		if ti != tj {
			return ti < tj
		}
		return out[i].Priority < out[j].Priority
	})
	return out, nil
}

// wantedCredentials lists the credential keys of the capable providers, for
// the MissingCredentialsError message.
func wantedCredentials(capable []provider.Descriptor) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range capable {
		if d.CredentialKey != "" && !seen[d.CredentialKey] {
			seen[d.CredentialKey] = true
			out = append(out, d.CredentialKey)
		}
	}
	return out
}
