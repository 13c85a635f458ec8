package router

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/factrouter/internal/alert"
	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/internal/quota"
)

// scripted replays errs in order, then succeeds.
type scripted struct {
	id    string
	errs  []error
	calls atomic.Int32
	wait  time.Duration

	mu       sync.Mutex
	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
	lastCall provider.Call
}

func (s *scripted) ID() string { return s.id }

func (s *scripted) Invoke(ctx context.Context, call provider.Call) (*provider.Output, error) {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.lastCall = call
	s.mu.Unlock()

	if s.inFlight != nil {
		cur := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			seen := s.maxSeen.Load()
			if cur <= seen || s.maxSeen.CompareAndSwap(seen, cur) {
				break
			}
		}
	}
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= len(s.errs) && s.errs[n-1] != nil {
		return nil, s.errs[n-1]
	}
	return &provider.Output{Text: "answer from " + s.id}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *recordingSink) Alert(_ context.Context, a alert.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingSink) kinds() []alert.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]alert.Kind, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Kind
	}
	return out
}

type brokenLedger struct{ quota.Ledger }

func (brokenLedger) IsExhausted(context.Context, string, quota.Date) (bool, error) {
	return false, errors.New("disk on fire")
}

func (brokenLedger) MarkExhausted(context.Context, string, quota.Date) error { return nil }

var testNow = time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)

func text(id string, prio int, grounded bool) provider.Descriptor {
	caps := []provider.Capability{provider.CapTextAnalysis}
	if grounded {
		caps = append(caps, provider.CapGroundedSearch)
	}
	return provider.Descriptor{ID: id, Priority: prio, Capabilities: caps, Kind: provider.KindRemoteAPI, CredentialKey: "KEY_" + id}
}

func newLedger(t *testing.T) *quota.FileLedger {
	t.Helper()
	l, err := quota.OpenFile(filepath.Join(t.TempDir(), "quota.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func newExecutor(t *testing.T, ledger quota.Ledger, sink alert.Sink, adapters ...provider.Adapter) *Executor {
	t.Helper()
	return NewExecutor(ExecutorConfig{
		AttemptTimeout: time.Second,
		MaxRetries:     2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}, ledger, adapters, WithClock(quota.FixedClock(testNow)), WithAlerts(sink))
}

func factCheck(content string) Request {
	return Request{Content: content, Task: provider.TaskFactCheck}
}

func TestTransition(t *testing.T) {
	p := Policy{Providers: 3, MaxRetries: 2}
	tests := []struct {
		name string
		cur  Cursor
		out  Outcome
		want Cursor
	}{
		{"success", Cursor{StateTryNext, 0, 0}, OutcomeSuccess, Cursor{StateSuccess, 0, 0}},
		{"success after retry", Cursor{StateRetrySame, 1, 2}, OutcomeSuccess, Cursor{StateSuccess, 1, 2}},
		{"quota advances", Cursor{StateTryNext, 0, 0}, OutcomeQuota, Cursor{StateTryNext, 1, 0}},
		{"skip advances", Cursor{StateTryNext, 1, 0}, OutcomeSkipped, Cursor{StateTryNext, 2, 0}},
		{"transient retries", Cursor{StateTryNext, 0, 0}, OutcomeTransient, Cursor{StateRetrySame, 0, 1}},
		{"transient retry budget spent", Cursor{StateRetrySame, 0, 2}, OutcomeTransient, Cursor{StateTryNext, 1, 0}},
		{"auth advances", Cursor{StateTryNext, 0, 0}, OutcomeAuth, Cursor{StateTryNext, 1, 0}},
		{"unsupported advances", Cursor{StateTryNext, 1, 0}, OutcomeUnsupported, Cursor{StateTryNext, 2, 0}},
		{"last provider fails", Cursor{StateTryNext, 2, 0}, OutcomeQuota, Cursor{StateExhaustedAll, 2, 0}},
		{"terminal is sticky", Cursor{StateSuccess, 0, 0}, OutcomeAuth, Cursor{StateSuccess, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transition(tt.cur, tt.out, p))
		})
	}
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, OutcomeOf(nil))
	assert.Equal(t, OutcomeQuota, OutcomeOf(provider.QuotaExceeded("a", errors.New("429"))))
	assert.Equal(t, OutcomeTransient, OutcomeOf(provider.Transient("a", errors.New("reset"))))
	assert.Equal(t, OutcomeUnsupported, OutcomeOf(provider.Unsupported("a", provider.CapGroundedSearch)))
	assert.Equal(t, OutcomeAuth, OutcomeOf(errors.New("something nobody classified")))
	assert.True(t, OutcomeQuota.MarksExhausted())
	assert.False(t, OutcomeTransient.MarksExhausted())
}

func TestFilterByTask_GroundedTierBeforePriority(t *testing.T) {
	a := text("A", 1, true)
	b := text("B", 2, true)
	c := text("C", 0, false)
	speech := provider.Descriptor{ID: "S", Priority: 0, Capabilities: []provider.Capability{provider.CapSpeechSynthesis}, Kind: provider.KindLocalModel}

	chain, err := FilterByTask([]provider.Descriptor{c, speech, b, a}, provider.TaskFactCheck)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(chain))

	chain, err = FilterByTask([]provider.Descriptor{c, speech, b, a}, provider.TaskAnalysis)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, ids(chain))

	chain, err = FilterByTask([]provider.Descriptor{c, speech, b, a}, provider.TaskSpeech)
	require.NoError(t, err)
	assert.Equal(t, []string{"S"}, ids(chain))

	_, err = FilterByTask(nil, provider.TaskType("HOROSCOPE"))
	assert.Error(t, err)
}

func TestResolveCredentials(t *testing.T) {
	local := provider.Descriptor{ID: "L", Priority: 9, Capabilities: []provider.Capability{provider.CapTextAnalysis}, Kind: provider.KindLocalModel}
	in := []provider.Descriptor{text("A", 1, true), text("B", 2, false), local}

	out := ResolveCredentials(in, Credentials{"KEY_B": "sk-b", "KEY_A": "  "})
	assert.Equal(t, []string{"B", "L"}, ids(out))

	assert.Equal(t, []string{"KEY_B"}, Credentials{"KEY_B": "x", "KEY_A": ""}.Names())
}

func TestRouter_MissingCredentialsFailsBeforeNetwork(t *testing.T) {
	a := &scripted{id: "A"}
	reg := provider.MustRegistry(text("A", 1, true))
	r := New(reg, Credentials{}, newExecutor(t, newLedger(t), alert.Nop{}, a))

	_, err := r.Route(context.Background(), factCheck("the moon is cheese"))

	var missing *MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, provider.TaskFactCheck, missing.Task)
	assert.Equal(t, []string{"KEY_A"}, missing.Wanted)
	assert.Contains(t, err.Error(), "KEY_A")
	assert.EqualValues(t, 0, a.calls.Load())
}

func TestRouter_InvalidRequest(t *testing.T) {
	r := New(provider.MustRegistry(text("A", 1, true)), Credentials{"KEY_A": "k"}, newExecutor(t, newLedger(t), alert.Nop{}))

	_, err := r.Route(context.Background(), factCheck("   "))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = r.Route(context.Background(), Request{Content: "x", Task: "NOPE"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = r.Route(context.Background(), Request{Content: "x", Task: provider.TaskFactCheck, Mode: "VERBOSE"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRouter_QuotaMarksAndSkips(t *testing.T) {
	ledger := newLedger(t)
	a := &scripted{id: "A", errs: []error{provider.QuotaExceeded("A", errors.New("429"))}}
	b := &scripted{id: "B", errs: []error{provider.QuotaExceeded("B", errors.New("resource exhausted"))}}
	c := &scripted{id: "C"}
	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true), text("C", 3, false))
	creds := Credentials{"KEY_A": "a", "KEY_B": "b", "KEY_C": "c"}
	r := New(reg, creds, newExecutor(t, ledger, alert.Nop{}, a, b, c))

	res, err := r.Route(context.Background(), factCheck("claim"))
	require.NoError(t, err)
	assert.Equal(t, "C", res.ProviderID)
	assert.Equal(t, "answer from C", res.Content)
	assert.True(t, res.Degraded)

	marks, err := ledger.List(context.Background())
	require.NoError(t, err)
	today := quota.DateOf(testNow)
	assert.Equal(t, map[string]quota.Date{"A": today, "B": today}, marks)

	// second request: A and B are skipped without a call
	res, err = r.Route(context.Background(), factCheck("claim again"))
	require.NoError(t, err)
	assert.Equal(t, "C", res.ProviderID)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
	assert.EqualValues(t, 2, c.calls.Load())
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, OutcomeSkipped, res.Attempts[0].Outcome)
	assert.Equal(t, OutcomeSkipped, res.Attempts[1].Outcome)
}

func TestRouter_YesterdaysMarkDoesNotSkip(t *testing.T) {
	ledger := newLedger(t)
	require.NoError(t, ledger.MarkExhausted(context.Background(), "A", quota.DateOf(testNow).AddDays(-1)))
	a := &scripted{id: "A"}
	r := New(provider.MustRegistry(text("A", 1, true)), Credentials{"KEY_A": "a"}, newExecutor(t, ledger, alert.Nop{}, a))

	res, err := r.Route(context.Background(), factCheck("claim"))
	require.NoError(t, err)
	assert.Equal(t, "A", res.ProviderID)
	assert.False(t, res.Degraded)
}

func TestRouter_TransientRetriesSameProviderWithoutMarking(t *testing.T) {
	ledger := newLedger(t)
	timeout := provider.Transient("A", errors.New("i/o timeout"))
	a := &scripted{id: "A", errs: []error{timeout, timeout}}
	b := &scripted{id: "B"}
	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true))
	r := New(reg, Credentials{"KEY_A": "a", "KEY_B": "b"}, newExecutor(t, ledger, alert.Nop{}, a, b))

	res, err := r.Route(context.Background(), factCheck("claim"))
	require.NoError(t, err)
	assert.Equal(t, "A", res.ProviderID)
	assert.EqualValues(t, 3, a.calls.Load())
	assert.EqualValues(t, 0, b.calls.Load())

	marks, err := ledger.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, marks)
}

func TestRouter_TransientBudgetExhaustedMovesOn(t *testing.T) {
	ledger := newLedger(t)
	timeout := provider.Transient("A", errors.New("connection reset"))
	a := &scripted{id: "A", errs: []error{timeout, timeout, timeout}}
	b := &scripted{id: "B"}
	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true))
	r := New(reg, Credentials{"KEY_A": "a", "KEY_B": "b"}, newExecutor(t, ledger, alert.Nop{}, a, b))

	res, err := r.Route(context.Background(), factCheck("claim"))
	require.NoError(t, err)
	assert.Equal(t, "B", res.ProviderID)
	assert.EqualValues(t, 3, a.calls.Load())

	exhausted, err := ledger.IsExhausted(context.Background(), "A", quota.DateOf(testNow))
	require.NoError(t, err)
	assert.False(t, exhausted)
}

func TestRouter_AttemptTimeoutIsTransient(t *testing.T) {
	a := &scripted{id: "A", wait: time.Minute}
	b := &scripted{id: "B"}
	exec := NewExecutor(ExecutorConfig{AttemptTimeout: 10 * time.Millisecond, MaxRetries: NoRetries, BackoffInitial: time.Millisecond},
		newLedger(t), []provider.Adapter{a, b}, WithClock(quota.FixedClock(testNow)))
	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true))
	r := New(reg, Credentials{"KEY_A": "a", "KEY_B": "b"}, exec)

	res, err := r.Route(context.Background(), factCheck("claim"))
	require.NoError(t, err)
	assert.Equal(t, "B", res.ProviderID)
	assert.Equal(t, OutcomeTransient, res.Attempts[0].Outcome)
}

func TestRouter_AuthAlertsAndMovesOn(t *testing.T) {
	sink := &recordingSink{}
	ledger := newLedger(t)
	a := &scripted{id: "A", errs: []error{provider.Auth("A", errors.New("401 invalid key"))}}
	b := &scripted{id: "B"}
	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true))
	r := New(reg, Credentials{"KEY_A": "a", "KEY_B": "b"}, newExecutor(t, ledger, sink, a, b))

	res, err := r.Route(context.Background(), factCheck("claim"))
	require.NoError(t, err)
	assert.Equal(t, "B", res.ProviderID)
	assert.Equal(t, []alert.Kind{alert.KindAuthFailure}, sink.kinds())

	marks, err := ledger.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, marks)
}

func TestRouter_TerminalFailure(t *testing.T) {
	sink := &recordingSink{}
	a := &scripted{id: "A", errs: []error{provider.QuotaExceeded("A", errors.New("429"))}}
	b := &scripted{id: "B", errs: []error{provider.Auth("B", errors.New("403"))}}
	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true))
	r := New(reg, Credentials{"KEY_A": "a", "KEY_B": "b"}, newExecutor(t, newLedger(t), sink, a, b))

	_, err := r.Route(context.Background(), factCheck("claim"))

	var tf *TerminalFailure
	require.ErrorAs(t, err, &tf)
	assert.NotContains(t, err.Error(), "403")
	require.Len(t, tf.Attempts, 2)
	assert.Equal(t, "A#0=quota_exceeded B#0=auth", tf.Summary())
	assert.Equal(t, []alert.Kind{alert.KindAuthFailure, alert.KindTerminalFailure}, sink.kinds())
}

func TestExecutor_UnsupportedCapabilityIsCaughtBeforeInvoke(t *testing.T) {
	sink := &recordingSink{}
	a := &scripted{id: "A"}
	b := &scripted{id: "B"}
	exec := newExecutor(t, newLedger(t), sink, a, b)

	// A bypassed the filter on purpose: it can only synthesize speech.
	speechOnly := provider.Descriptor{ID: "A", Priority: 1, Kind: provider.KindLocalModel,
		Capabilities: []provider.Capability{provider.CapSpeechSynthesis}}
	require.False(t, speechOnly.Has(provider.CapTextAnalysis))

	res, err := exec.Execute(context.Background(), []provider.Descriptor{speechOnly, text("B", 2, true)}, Request{
		Content: "claim", Task: provider.TaskFactCheck, Mode: provider.ModeSummary, Language: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "B", res.ProviderID)
	assert.EqualValues(t, 0, a.calls.Load())
	assert.Equal(t, []alert.Kind{alert.KindCapabilityBug}, sink.kinds())
}

func TestExecutorConfig_RetryDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero selects the default", 0, DefaultMaxRetries},
		{"explicit value is kept", 5, 5},
		{"no retries", NoRetries, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExecutorConfig{MaxRetries: tt.in}.withDefaults()
			assert.Equal(t, tt.want, got.MaxRetries)
			assert.Equal(t, DefaultAttemptTimeout, got.AttemptTimeout)
		})
	}
}

func TestRouter_ZeroConfigRetriesTransientFailures(t *testing.T) {
	timeout := provider.Transient("A", errors.New("i/o timeout"))
	a := &scripted{id: "A", errs: []error{timeout, timeout}}
	exec := NewExecutor(ExecutorConfig{BackoffInitial: time.Millisecond, BackoffMax: 2 * time.Millisecond},
		newLedger(t), []provider.Adapter{a}, WithClock(quota.FixedClock(testNow)))
	r := New(provider.MustRegistry(text("A", 1, true)), Credentials{"KEY_A": "a"}, exec)

	res, err := r.Route(context.Background(), factCheck("claim"))
	require.NoError(t, err)
	assert.Equal(t, "A", res.ProviderID)
	assert.EqualValues(t, DefaultMaxRetries+1, a.calls.Load())
}

func TestExecutor_LedgerReadFailureFailsOpen(t *testing.T) {
	a := &scripted{id: "A"}
	exec := newExecutor(t, brokenLedger{}, alert.Nop{}, a)
	r := New(provider.MustRegistry(text("A", 1, true)), Credentials{"KEY_A": "a"}, exec)

	res, err := r.Route(context.Background(), factCheck("claim"))
	require.NoError(t, err)
	assert.Equal(t, "A", res.ProviderID)
}

func TestRouter_CancellationStopsTheChain(t *testing.T) {
	ledger := newLedger(t)
	a := &scripted{id: "A", errs: []error{provider.QuotaExceeded("A", errors.New("429"))}}
	b := &scripted{id: "B", wait: time.Minute}
	c := &scripted{id: "C"}
	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true), text("C", 3, true))
	r := New(reg, Credentials{"KEY_A": "a", "KEY_B": "b", "KEY_C": "c"}, newExecutor(t, ledger, alert.Nop{}, a, b, c))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Route(ctx, factCheck("claim"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 0, c.calls.Load())

	exhausted, err := ledger.IsExhausted(context.Background(), "A", quota.DateOf(testNow))
	require.NoError(t, err)
	assert.True(t, exhausted, "marks written before cancellation stay")
}

func TestRouter_TriesProvidersOneAtATime(t *testing.T) {
	inFlight, maxSeen := &atomic.Int32{}, &atomic.Int32{}
	quotaErr := provider.QuotaExceeded("x", errors.New("429"))
	a := &scripted{id: "A", errs: []error{quotaErr}, wait: 5 * time.Millisecond, inFlight: inFlight, maxSeen: maxSeen}
	b := &scripted{id: "B", errs: []error{provider.Transient("B", errors.New("eof"))}, wait: 5 * time.Millisecond, inFlight: inFlight, maxSeen: maxSeen}
	c := &scripted{id: "C", wait: 5 * time.Millisecond, inFlight: inFlight, maxSeen: maxSeen}
	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true), text("C", 3, true))
	r := New(reg, Credentials{"KEY_A": "a", "KEY_B": "b", "KEY_C": "c"}, newExecutor(t, newLedger(t), alert.Nop{}, a, b, c))

	res, err := r.Route(context.Background(), factCheck("claim"))
	require.NoError(t, err)
	assert.Equal(t, "B", res.ProviderID)
	assert.EqualValues(t, 1, maxSeen.Load())
	assert.EqualValues(t, 0, c.calls.Load())
}

func TestRouter_PreferMovesProviderFirst(t *testing.T) {
	a := &scripted{id: "A"}
	b := &scripted{id: "B"}
	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true))
	r := New(reg, Credentials{"KEY_A": "a", "KEY_B": "b"}, newExecutor(t, newLedger(t), alert.Nop{}, a, b))

	req := factCheck("claim")
	req.Prefer = "B"
	req.Previous = "earlier answer"
	res, err := r.Route(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "B", res.ProviderID)
	assert.Equal(t, "earlier answer", b.lastCall.Previous)

	chain, err := r.Plan(provider.TaskFactCheck)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(chain), "plan itself is untouched")
}

func TestRouter_Status(t *testing.T) {
	ledger := newLedger(t)
	today := quota.DateOf(testNow)
	require.NoError(t, ledger.MarkExhausted(context.Background(), "A", today))
	require.NoError(t, ledger.MarkExhausted(context.Background(), "B", today.AddDays(-3)))

	reg := provider.MustRegistry(text("A", 1, true), text("B", 2, true), text("C", 3, false))
	r := New(reg, Credentials{"KEY_A": "a", "KEY_B": "b"}, newExecutor(t, ledger, alert.Nop{}))

	st, err := r.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, st, 3)

	assert.True(t, st[0].ExhaustedToday)
	assert.Equal(t, today.String(), st[0].ExhaustedOn)
	assert.False(t, st[1].ExhaustedToday)
	assert.True(t, st[1].Eligible)
	assert.False(t, st[2].Eligible)
}
