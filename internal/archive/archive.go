// Package archive keeps the final snapshot of every session that leaves the
// registry, so results stay inspectable after the idle sweep.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/batch"
	pebblestore "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/storage/pebble"
)

const keyPrefix = "session/"

// Record is one archived session.
type Record struct {
	Progress   batch.Progress `json:"progress"`
	Results    batch.Results  `json:"results"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// Store persists records in Pebble under session/<id>.
type Store struct {
	db  *pebblestore.DB
	now func() time.Time
}

// New returns a Store over db.
func New(db *pebblestore.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func key(id string) []byte { return []byte(keyPrefix + id) }

// Archive implements batch.Archiver.
func (s *Store) Archive(ctx context.Context, snap batch.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := Record{Progress: snap.Progress, Results: snap.Results, ArchivedAt: s.now().UTC()}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: encode %s: %w", snap.Progress.SessionID, err)
	}
	return s.db.Set(key(snap.Progress.SessionID), b)
}

// Get returns the record for a session id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, batch.Validationf("session_id is required")
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	b, err := s.db.Get(key(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: archived session %s", batch.ErrNotFound, id)
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("archive: decode %s: %w", id, err)
	}
	return rec, nil
}

// List returns up to limit records, most recently archived first. A
// non-positive limit returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	var decodeErr error
	err := s.db.Scan([]byte(keyPrefix), func(k, v []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			decodeErr = fmt.Errorf("archive: decode %s: %w", k, err)
			return false
		}
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ArchivedAt.After(out[j].ArchivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete drops a record.
func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Delete(key(id))
}
