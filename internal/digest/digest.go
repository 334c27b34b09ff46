// Package digest periodically summarizes engine activity for the operator.
// The reporter is strictly read-only: it observes card stats and focus state
// and forwards a rendered summary to a presenter, never mutating anything.
package digest

import (
	"context"
	"errors"
	"sync"
	"time"

	"vigil/internal/card"
	"vigil/internal/logging"
)

// DefaultInterval is the stock digest period.
const DefaultInterval = 1800 * time.Second

// ErrInvalidInterval is returned by SetInterval for non-positive durations.
var ErrInvalidInterval = errors.New("digest interval must be positive")

// Source is the read side the reporter observes. *engine.Engine satisfies
// it.
type Source interface {
	Stats() card.Stats
	HighPriorityPending() []card.Card
	FocusMode() string
}

// Report is one generated digest.
type Report struct {
	GeneratedAt time.Time
	Stats       card.Stats
	FocusMode   string
	HighImpact  []card.Card
}

// Presenter renders a report to the operator surface.
type Presenter interface {
	Present(Report)
}

// Reporter fires digests on an independent timer.
type Reporter struct {
	source    Source
	presenter Presenter

	mu       sync.Mutex
	interval time.Duration // applied at the next Run, not mid-loop
}

// NewReporter creates a reporter with the default interval.
func NewReporter(source Source, presenter Presenter) *Reporter {
	return &Reporter{source: source, presenter: presenter, interval: DefaultInterval}
}

// SetInterval changes the digest period. Takes effect the next time Run is
// started; a running loop keeps its current period.
func (r *Reporter) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}
	r.mu.Lock()
	r.interval = d
	r.mu.Unlock()
	return nil
}

// Interval returns the configured period.
func (r *Reporter) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Run fires digests until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Fire(time.Now())
		}
	}
}

// Fire generates and presents one digest. A period with no cards at all
// produces nothing; silence means silence.
func (r *Reporter) Fire(now time.Time) {
	stats := r.source.Stats()
	if stats.Total == 0 {
		logging.Digest("skipping digest: no activity")
		return
	}

	report := Report{
		GeneratedAt: now,
		Stats:       stats,
		FocusMode:   r.source.FocusMode(),
		HighImpact:  r.source.HighPriorityPending(),
	}
	logging.Digest("digest: %d total card(s), %d pending, %d high-impact",
		stats.Total, stats.Pending, len(report.HighImpact))
	r.presenter.Present(report)
}
