package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
)

// FileStore implements Store over a flat directory of JSON files, one per
// entry, named "<stationID>.<bucketKey>". Concurrent writers to distinct keys
// need no coordination; the rare same-key race is last-write-wins, which the
// upsert semantics tolerate.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the backing directory path.
func (s *FileStore) Dir() string {
	return s.dir
}

// Ping verifies the backing directory is still present and writable. Used by
// the health endpoint.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("data dir unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", s.dir)
	}

	probe, err := os.CreateTemp(s.dir, ".healthcheck-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

func (s *FileStore) path(stationID, bucketKey string) string {
	return filepath.Join(s.dir, stationID+"."+bucketKey)
}

func (s *FileStore) Get(ctx context.Context, stationID, bucketKey string) (*Entry, error) {
	if err := bucket.ValidateKey(bucketKey); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(s.path(stationID, bucketKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read entry %s.%s: %w", stationID, bucketKey, err)
	}

	return decodeEntry(stationID, bucketKey, raw)
}

func (s *FileStore) Put(ctx context.Context, stationID, bucketKey string, payload json.RawMessage) (*Entry, error) {
	if err := bucket.ValidateKey(bucketKey); err != nil {
		return nil, err
	}

	fields, err := payloadFields(payload)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	meta := Metadata{
		StationID:   stationID,
		BucketKey:   bucketKey,
		CollectedAt: now,
		UpdatedAt:   now,
		IsLatest:    true,
	}

	// Read-then-write to keep collectedAt sticky. A concurrent first write can
	// double-stamp collectedAt; it never corrupts data.
	if prev, err := s.Get(ctx, stationID, bucketKey); err == nil {
		if !prev.Metadata.CollectedAt.IsZero() {
			meta.CollectedAt = prev.Metadata.CollectedAt
		}
		if prev.Metadata.ArchivedAt != nil {
			meta.ArchivedAt = prev.Metadata.ArchivedAt
			meta.IsLatest = false
		}
	}

	if err := s.writeEntry(stationID, bucketKey, fields, meta); err != nil {
		return nil, err
	}

	cleaned, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &Entry{StationID: stationID, BucketKey: bucketKey, Payload: cleaned, Metadata: meta}, nil
}

// writeEntry persists payload fields plus metadata atomically: the full file
// appears via rename or not at all.
func (s *FileStore) writeEntry(stationID, bucketKey string, fields map[string]json.RawMessage, meta Metadata) error {
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	fields["metadata"] = metaRaw

	doc, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	delete(fields, "metadata")

	dst := s.path(stationID, bucketKey)
	tmp, err := os.CreateTemp(s.dir, stationID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write entry %s.%s: %w", stationID, bucketKey, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close entry %s.%s: %w", stationID, bucketKey, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit entry %s.%s: %w", stationID, bucketKey, err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, stationID string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list entries: %w", err)
	}

	prefix := stationID + "."
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		key := strings.TrimPrefix(e.Name(), prefix)
		if bucket.ValidateKey(key) != nil {
			continue // temp files and strays
		}
		keys = append(keys, key)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

func (s *FileStore) Delete(ctx context.Context, stationID, bucketKey string) error {
	if err := bucket.ValidateKey(bucketKey); err != nil {
		return err
	}
	if err := os.Remove(s.path(stationID, bucketKey)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete entry %s.%s: %w", stationID, bucketKey, err)
	}
	return nil
}

func (s *FileStore) PruneBefore(ctx context.Context, stationID, cutoffKey string) (int, error) {
	if err := bucket.ValidateKey(cutoffKey); err != nil {
		return 0, err
	}

	keys, err := s.List(ctx, stationID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range keys {
		if len(key) != len(cutoffKey) || key >= cutoffKey {
			continue
		}
		if err := os.Remove(s.path(stationID, key)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return deleted, fmt.Errorf("prune entry %s.%s: %w", stationID, key, err)
		}
		deleted++
	}
	return deleted, nil
}

// ArchiveBefore reclassifies every entry whose file modification time is older
// than cutoff: isLatest becomes false and archivedAt is stamped once. Entries
// are rewritten in place, never deleted. Unparsable files are logged and
// skipped. Returns the number of entries newly archived.
func (s *FileStore) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("scan data dir: %w", err)
	}

	archived := 0
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		if de.IsDir() {
			continue
		}
		stationID, key, ok := splitEntryName(de.Name())
		if !ok {
			continue
		}

		info, err := de.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		entry, err := s.Get(ctx, stationID, key)
		if err != nil {
			slog.Warn("Skipping unreadable entry during archive sweep",
				"station_id", stationID, "bucket_key", key, "error", err)
			continue
		}
		if entry.Metadata.ArchivedAt != nil {
			continue // archivedAt is set once and never moves
		}

		fields, err := payloadFields(entry.Payload)
		if err != nil {
			slog.Warn("Skipping undecodable entry during archive sweep",
				"station_id", stationID, "bucket_key", key, "error", err)
			continue
		}

		now := s.now().UTC()
		meta := entry.Metadata
		meta.IsLatest = false
		meta.ArchivedAt = &now
		if err := s.writeEntry(stationID, key, fields, meta); err != nil {
			slog.Warn("Failed to archive entry",
				"station_id", stationID, "bucket_key", key, "error", err)
			continue
		}
		archived++
	}
	return archived, nil
}

// splitEntryName splits "<stationID>.<bucketKey>" on the last dot, since
// station identifiers themselves contain dots ("P.1").
func splitEntryName(name string) (stationID, key string, ok bool) {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	stationID, key = name[:i], name[i+1:]
	if bucket.ValidateKey(key) != nil {
		return "", "", false
	}
	return stationID, key, true
}

// payloadFields parses a payload into its top-level members, rejecting
// non-objects and stripping any client-supplied metadata member.
func payloadFields(payload json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	delete(fields, "metadata")
	return fields, nil
}

// decodeEntry parses a stored file into an Entry, surfacing unparsable
// documents as ErrCorrupt rather than a silent miss.
func decodeEntry(stationID, bucketKey string, raw []byte) (*Entry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: entry %s.%s: %v", ErrCorrupt, stationID, bucketKey, err)
	}

	var meta Metadata
	if metaRaw, ok := fields["metadata"]; ok {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return nil, fmt.Errorf("%w: entry %s.%s metadata: %v", ErrCorrupt, stationID, bucketKey, err)
		}
		delete(fields, "metadata")
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %s.%s: %v", ErrCorrupt, stationID, bucketKey, err)
	}

	return &Entry{
		StationID: stationID,
		BucketKey: bucketKey,
		Payload:   payload,
		Metadata:  meta,
	}, nil
}
