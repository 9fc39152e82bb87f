// Package retention marks aged cache entries as archived so the freshness
// rules stop considering them current. Entries are never deleted here; pruning
// is an explicit operator action on the management API.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
)

const defaultMaxAgeDays = 7

// Archiver marks every entry older than the cutoff as archived.
type Archiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper ages out entries past a fixed retention window.
type Sweeper struct {
	archiver   Archiver
	maxAgeDays int
	now        func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithMaxAgeDays sets the retention window in days.
func WithMaxAgeDays(days int) Option {
	return func(s *Sweeper) {
		if days > 0 {
			s.maxAgeDays = days
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New builds a Sweeper over the given archiver.
func New(archiver Archiver, opts ...Option) *Sweeper {
	s := &Sweeper{
		archiver:   archiver,
		maxAgeDays: defaultMaxAgeDays,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep archives everything older than the retention window. Archiving is
// one-way: an entry swept here never reports as latest again.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := s.now().In(bucket.Reference).AddDate(0, 0, -s.maxAgeDays)

	archived, err := s.archiver.ArchiveBefore(ctx, cutoff)
	if err != nil {
		slog.Error("[Retention] Sweep failed", "cutoff", cutoff, "error", err)
		return err
	}

	slog.Info("[Retention] Sweep finished",
		"cutoff", cutoff, "archived", archived, "max_age_days", s.maxAgeDays)
	return nil
}
