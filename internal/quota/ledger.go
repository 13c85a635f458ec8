// Package quota persists which providers ran out of quota and on which day.
//
// A provider counts as exhausted only while the stored calendar date equals
// today's date. Dates are civil dates in a fixed time zone chosen at startup
// (process-local unless configured), so a record stops applying the moment
// that zone's calendar rolls over. No reset job exists.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

// AddDays normalises through time.Date so month and year boundaries work.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Before(o Date) bool { return d.String() < o.String() }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock yields "today" in the ledger's time zone.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// NewClock uses the wall clock in loc; nil means the process-local zone.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{Now: time.Now, Location: loc}
}

// FixedClock always reports the given instant. Useful in tests.
func FixedClock(t time.Time) Clock {
	return Clock{Now: func() time.Time { return t }, Location: t.Location()}
}

func (c Clock) Today() Date {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return DateOf(now().In(loc))
}

// ErrClosed is returned by a ledger after Close.
var ErrClosed = errors.New("quota ledger closed")

// Ledger records, per provider, the date it was last found exhausted.
//
// MarkExhausted is an idempotent upsert that never moves a record back in
// time, so concurrent marks for the same provider cannot lose the newest day.
type Ledger interface {
	IsExhausted(ctx context.Context, providerID string, today Date) (bool, error)
	MarkExhausted(ctx context.Context, providerID string, today Date) error
	// List returns every stored record, stale ones included.
	List(ctx context.Context) (map[string]Date, error)
	// Prune drops records older than before and reports how many went away.
	Prune(ctx context.Context, before Date) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// exhaustedOn is the single rule every backend applies.
func exhaustedOn(stored, today Date) bool {
	return !stored.IsZero() && stored == today
}
