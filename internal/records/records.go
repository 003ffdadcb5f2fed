// Package records keeps the generation history: one record per generation
// request, newest first, persisted as a JSON array in the key-value medium.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/falstudio/falstudio/internal/mediacache"
	"github.com/falstudio/falstudio/internal/medium"
)

// DefaultStorageKey is the medium key holding the serialized history.
const DefaultStorageKey = "fal_generation_history"

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Record is one generation request and its results.
type Record struct {
	ID      string                 `json:"id"`
	ModelID string                 `json:"modelId"`
	Params  map[string]interface{} `json:"params"`
	// MediaURLs holds the renderable URLs; after localization these are
	// embedded data URLs and OriginalMediaURLs keeps the remote sources
	// for provenance.
	MediaURLs         []string  `json:"mediaUrls"`
	OriginalMediaURLs []string  `json:"originalMediaUrls,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Partial is a set of fields to merge into an existing record. Nil fields
// are left untouched.
type Partial struct {
	Status            *string
	Params            map[string]interface{}
	MediaURLs         []string
	OriginalMediaURLs []string
}

// Resolver localizes a remote media URL into a renderable form.
type Resolver interface {
	Resolve(ctx context.Context, url string) (string, mediacache.Outcome)
}

// Store persists generation records in the medium.
type Store struct {
	medium medium.Medium
	key    string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates a Store. An empty key selects DefaultStorageKey.
func New(m medium.Medium, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultStorageKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		medium: m,
		key:    key,
		logger: logger,
		now:    time.Now,
	}
}

// GetAll returns every record, newest first. The result is never nil so it
// serializes as an empty array rather than null.
func (s *Store) GetAll() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load()
	if all == nil {
		all = []Record{}
	}
	return all
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.load() {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Add inserts a new record, assigning an id and timestamps.
func (s *Store) Add(rec Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	all := s.load()
	all = append(all, rec)
	s.save(all)
	return rec
}

// Upsert merges partial fields into the record with the given id and bumps
// its updatedAt timestamp.
func (s *Store) Upsert(id string, partial Partial) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load()
	for i := range all {
		if all[i].ID != id {
			continue
		}
		if partial.Status != nil {
			all[i].Status = *partial.Status
		}
		if partial.Params != nil {
			all[i].Params = partial.Params
		}
		if partial.MediaURLs != nil {
			all[i].MediaURLs = partial.MediaURLs
		}
		if partial.OriginalMediaURLs != nil {
			all[i].OriginalMediaURLs = partial.OriginalMediaURLs
		}
		all[i].UpdatedAt = s.now().UTC()
		s.save(all)
		return all[i], nil
	}
	return Record{}, ErrNotFound
}

// Delete removes the record with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load()
	for i := range all {
		if all[i].ID == id {
			all = append(all[:i], all[i+1:]...)
			s.save(all)
			return nil
		}
	}
	return ErrNotFound
}

// LocalizeMedia resolves each remote media URL on the record through the
// cache and rewrites the record to reference the embedded forms, keeping the
// original URLs for provenance. URLs that fail to resolve stay remote.
func (s *Store) LocalizeMedia(ctx context.Context, id string, resolver Resolver) (Record, error) {
	rec, ok := s.Get(id)
	if !ok {
		return Record{}, ErrNotFound
	}

	localized := make([]string, len(rec.MediaURLs))
	originals := append([]string(nil), rec.OriginalMediaURLs...)
	changed := false
	for i, u := range rec.MediaURLs {
		resolved, outcome := resolver.Resolve(ctx, u)
		localized[i] = resolved
		if resolved != u {
			originals = append(originals, u)
			changed = true
		}
		if outcome == mediacache.OutcomeFallback {
			s.logger.Warn("media left remote after localization", "record", id, "url", u)
		}
	}
	if !changed {
		return rec, nil
	}
	return s.Upsert(id, Partial{MediaURLs: localized, OriginalMediaURLs: originals})
}

// load reads the persisted history, newest first. Missing or corrupt state
// reads as empty.
func (s *Store) load() []Record {
	raw, ok := s.medium.Get(s.key)
	if !ok {
		return nil
	}
	var all []Record
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		s.logger.Warn("history state unreadable, treating as empty", "error", err)
		return nil
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all
}

// save persists the history. Write failures are logged, not propagated; the
// in-memory result of the current call is still returned to the caller.
func (s *Store) save(all []Record) {
	raw, err := json.Marshal(all)
	if err != nil {
		s.logger.Error("failed to encode history", "error", err)
		return
	}
	if err := s.medium.Set(s.key, string(raw)); err != nil {
		s.logger.Error("failed to persist history", "count", len(all), "error", err)
	}
}
