package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
)

type recordingArchiver struct {
	cutoff   time.Time
	archived int
	err      error
}

func (a *recordingArchiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	a.cutoff = cutoff
	return a.archived, a.err
}

func TestSweepUsesRetentionWindowCutoff(t *testing.T) {
	now := time.Date(2024, 3, 10, 2, 0, 0, 0, bucket.Reference)
	archiver := &recordingArchiver{archived: 3}

	s := New(archiver, WithClock(func() time.Time { return now }))
	require.NoError(t, s.Sweep(context.Background()))
	require.Equal(t, now.AddDate(0, 0, -7), archiver.cutoff)
}

func TestSweepHonoursConfiguredMaxAge(t *testing.T) {
	now := time.Date(2024, 3, 10, 2, 0, 0, 0, bucket.Reference)
	archiver := &recordingArchiver{}

	s := New(archiver, WithMaxAgeDays(30), WithClock(func() time.Time { return now }))
	require.NoError(t, s.Sweep(context.Background()))
	require.Equal(t, now.AddDate(0, 0, -30), archiver.cutoff)
}

func TestSweepPropagatesArchiverFailure(t *testing.T) {
	wantErr := errors.New("disk gone")
	s := New(&recordingArchiver{err: wantErr})
	require.ErrorIs(t, s.Sweep(context.Background()), wantErr)
}
