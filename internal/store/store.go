// Package store is the per-(station, bucket) persistent cache that mediates
// between the unreliable upstream API and its readers. Writes are idempotent
// upserts: payload is last-write-wins while the first-collected timestamp is
// preserved for provenance.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/station"
)

var (
	// ErrNotFound is returned when no entry exists for a key. It is a local,
	// recoverable condition: readers fall back, they do not fail.
	ErrNotFound = errors.New("cache entry not found")

	// ErrCorrupt is returned when a stored payload no longer parses. Kept
	// distinct from ErrNotFound so callers can tell "no data" from "bad data".
	ErrCorrupt = errors.New("corrupt stored data")

	// ErrBadPayload is returned by Put when the payload is not a JSON object.
	ErrBadPayload = errors.New("payload must be a JSON object")
)

// Metadata is the bookkeeping block attached to every cache entry.
type Metadata struct {
	StationID   string     `json:"stationId"`
	BucketKey   string     `json:"bucketKey"`
	CollectedAt time.Time  `json:"collectedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	IsLatest    bool       `json:"isLatest"`
	ArchivedAt  *time.Time `json:"archivedAt,omitempty"`
}

// Entry is one cached reading for a (station, bucket) key. Payload holds the
// upstream object verbatim, minus the metadata member.
type Entry struct {
	StationID string
	BucketKey string
	Payload   json.RawMessage
	Metadata  Metadata
}

// Reading decodes the payload into the typed upstream reading.
func (e *Entry) Reading() (station.Reading, error) {
	return station.Decode(e.Payload)
}

// Usable reports whether the entry's payload carries an actual water level.
// Entries that fail to decode are never usable.
func (e *Entry) Usable() bool {
	r, err := e.Reading()
	if err != nil {
		return false
	}
	return r.Usable()
}

// Store is the cache's read/write contract shared by the collector, the
// resolver and the HTTP boundary.
type Store interface {
	// Get returns the entry for the key, ErrNotFound when absent,
	// bucket.ErrInvalidKey for malformed keys, ErrCorrupt for unparsable data.
	Get(ctx context.Context, stationID, bucketKey string) (*Entry, error)

	// Put upserts the payload under the key. On overwrite the existing
	// collectedAt is carried forward; updatedAt is refreshed. An entry already
	// archived by the retention sweep stays archived.
	Put(ctx context.Context, stationID, bucketKey string, payload json.RawMessage) (*Entry, error)

	// List returns the station's bucket keys sorted descending, most recent
	// first. Lexicographic order is chronological because keys are fixed-width
	// zero-padded digits.
	List(ctx context.Context, stationID string) ([]string, error)

	// Delete removes a single entry. ErrNotFound when absent.
	Delete(ctx context.Context, stationID, bucketKey string) error

	// PruneBefore deletes every entry whose key string-compares less than the
	// cutoff. Only keys of the same width as the cutoff participate: an 8-digit
	// cutoff never touches hourly keys, and vice versa.
	PruneBefore(ctx context.Context, stationID, cutoffKey string) (int, error)
}
