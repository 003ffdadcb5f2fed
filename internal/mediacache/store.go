// Package mediacache turns remote media URLs from generation results into
// self-contained data URLs persisted in the key-value medium, under a byte
// budget maintained by age- and size-based eviction.
package mediacache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/falstudio/falstudio/internal/medium"
)

// Store caches downloaded media in the persistence medium. All operations
// degrade rather than fail: the caller always gets back a renderable URL.
type Store struct {
	medium  medium.Medium
	policy  Policy
	logger  *slog.Logger
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	now     func() time.Time

	// mu serializes read-modify-write cycles against the medium.
	mu sync.Mutex

	hits      *metrics.Counter
	misses    *metrics.Counter
	fallbacks *metrics.Counter
	evictions *metrics.Counter
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient overrides the client used for media downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithClock overrides the time source. Tests use it to age entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRateLimit paces media downloads.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Store) { s.limiter = rate.NewLimiter(limit, burst) }
}

// New creates a Store over the given medium.
func New(m medium.Medium, policy Policy, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.StorageKey == "" {
		policy.StorageKey = DefaultStorageKey
	}
	if policy.Budget <= 0 {
		policy.Budget = DefaultBudget
	}
	s := &Store{
		medium:    m,
		policy:    policy,
		logger:    logger,
		client:    &http.Client{Timeout: 60 * time.Second},
		now:       time.Now,
		hits:      metrics.GetOrCreateCounter("media_cache_hits_total"),
		misses:    metrics.GetOrCreateCounter("media_cache_misses_total"),
		fallbacks: metrics.GetOrCreateCounter("media_cache_fallbacks_total"),
		evictions: metrics.GetOrCreateCounter("media_cache_evictions_total"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type resolution struct {
	url     string
	outcome Outcome
}

// Resolve returns a renderable URL for originalURL: the cached data URL on a
// hit, a freshly downloaded and embedded data URL on a miss, or the original
// URL unchanged when the input is already local or the download fails.
// Concurrent resolves of the same URL share one download.
func (s *Store) Resolve(ctx context.Context, originalURL string) (string, Outcome) {
	if !IsRemoteURL(originalURL) {
		return originalURL, OutcomePassThrough
	}

	if entry, ok := s.lookup(originalURL); ok {
		s.hits.Inc()
		return entry.LocalDataURL, OutcomeHit
	}
	s.misses.Inc()

	v, _, _ := s.group.Do(originalURL, func() (interface{}, error) {
		// Another flight may have landed while this one queued.
		if entry, ok := s.lookup(originalURL); ok {
			return resolution{entry.LocalDataURL, OutcomeHit}, nil
		}
		return s.fetchAndCache(ctx, originalURL), nil
	})
	res := v.(resolution)
	return res.url, res.outcome
}

func (s *Store) fetchAndCache(ctx context.Context, originalURL string) resolution {
	// Keep headroom before the write rather than fighting quota after it.
	s.maintenance()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.fallbacks.Inc()
			return resolution{originalURL, OutcomeFallback}
		}
	}

	data, contentType, err := s.download(ctx, originalURL)
	if err != nil {
		s.logger.Warn("media download failed, serving remote URL",
			"url", originalURL,
			"error", err,
		)
		s.fallbacks.Inc()
		return resolution{originalURL, OutcomeFallback}
	}

	entry := Entry{
		OriginalURL:  originalURL,
		LocalDataURL: EncodeDataURL(contentType, data),
		ContentType:  contentType,
		Size:         int64(len(data)),
		DownloadedAt: s.now().UTC(),
	}

	if s.persistWithRetry(entry) {
		return resolution{entry.LocalDataURL, OutcomeDownloaded}
	}
	// The unpersisted data URL still serves this render.
	return resolution{entry.LocalDataURL, OutcomeDegraded}
}

func (s *Store) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// persistWithRetry writes the updated map, walking the eviction ladder when
// the medium is full: age-based pass, size-based pass, aggressive age-based
// pass, then give up. Returns whether the entry was persisted.
func (s *Store) persistWithRetry(entry Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadEntries()
	entries[entry.OriginalURL] = entry

	err := s.saveEntries(entries)
	if err == nil {
		return true
	}
	if !errors.Is(err, medium.ErrQuotaExceeded) {
		s.logger.Error("failed to persist cache entry", "url", entry.OriginalURL, "error", err)
		return false
	}

	s.evictOlderThan(entries, s.policy.RetryMaxAge)
	if s.saveEntries(entries) == nil {
		return true
	}

	target := 2 * entry.Size
	if target < s.policy.RetryFreeFloor {
		target = s.policy.RetryFreeFloor
	}
	s.freeBytes(entries, target, entry.OriginalURL)
	if s.saveEntries(entries) == nil {
		return true
	}

	s.evictOlderThan(entries, s.policy.RetryAggressiveAge)
	err = s.saveEntries(entries)
	if err == nil {
		return true
	}
	s.logger.Error("cache write failed after eviction ladder, entry will not survive reload",
		"url", entry.OriginalURL,
		"size", entry.Size,
		"error", err,
	)
	return false
}

// maintenance proactively evicts when persisted usage crosses the threshold,
// so routine writes rarely hit the retry ladder. Usage is measured on the
// encoded byte length of the stored map, which exceeds the logical sizes by
// the base64 overhead.
func (s *Store) maintenance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.medium.Get(s.policy.StorageKey)
	if !ok {
		return
	}
	threshold := int64(float64(s.policy.Budget) * s.policy.MaintenanceThreshold)
	if int64(len(raw)) <= threshold {
		return
	}

	entries := s.parseEntries(raw)
	s.evictOlderThan(entries, s.policy.MaintenanceMaxAge)
	if s.encodedSize(entries) > threshold {
		s.evictOlderThan(entries, s.policy.MaintenanceMidAge)
	}
	if s.encodedSize(entries) > threshold {
		target := int64(float64(s.policy.Budget) * s.policy.MaintenanceTarget)
		s.shrinkToEncodedTarget(entries, target)
	}

	if err := s.saveEntries(entries); err != nil {
		s.logger.Warn("failed to persist maintenance cleanup", "error", err)
	}
}

// evictionOrder sorts entries largest first so each eviction frees the most
// space; equal sizes evict oldest first.
func evictionOrder(entries map[string]Entry) []Entry {
	order := make([]Entry, 0, len(entries))
	for _, e := range entries {
		order = append(order, e)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].Size != order[j].Size {
			return order[i].Size > order[j].Size
		}
		return order[i].DownloadedAt.Before(order[j].DownloadedAt)
	})
	return order
}

func (s *Store) evictOlderThan(entries map[string]Entry, age time.Duration) int {
	cutoff := s.now().Add(-age)
	removed := 0
	for url, e := range entries {
		if e.DownloadedAt.Before(cutoff) {
			delete(entries, url)
			removed++
			s.evictions.Inc()
		}
	}
	return removed
}

// freeBytes removes entries in eviction order until at least target logical
// bytes are freed or the map is exhausted. keep is never evicted.
func (s *Store) freeBytes(entries map[string]Entry, target int64, keep string) int64 {
	var freed int64
	for _, e := range evictionOrder(entries) {
		if freed >= target {
			break
		}
		if e.OriginalURL == keep {
			continue
		}
		delete(entries, e.OriginalURL)
		freed += e.Size
		s.evictions.Inc()
	}
	return freed
}

// shrinkToEncodedTarget evicts until the serialized map fits in target bytes.
func (s *Store) shrinkToEncodedTarget(entries map[string]Entry, target int64) {
	for len(entries) > 0 && s.encodedSize(entries) > target {
		victim := evictionOrder(entries)[0]
		delete(entries, victim.OriginalURL)
		s.evictions.Inc()
	}
}

func (s *Store) encodedSize(entries map[string]Entry) int64 {
	raw, err := json.Marshal(entries)
	if err != nil {
		return 0
	}
	return int64(len(raw))
}

func (s *Store) lookup(originalURL string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadEntries()
	e, ok := entries[originalURL]
	return e, ok
}

// loadEntries reads the persisted map. Missing or corrupt state reads as an
// empty store; unreadable prior state is discarded on the next write.
func (s *Store) loadEntries() map[string]Entry {
	raw, ok := s.medium.Get(s.policy.StorageKey)
	if !ok {
		return make(map[string]Entry)
	}
	return s.parseEntries(raw)
}

func (s *Store) parseEntries(raw string) map[string]Entry {
	entries := make(map[string]Entry)
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn("cache state unreadable, treating as empty", "error", err)
		return make(map[string]Entry)
	}
	return entries
}

func (s *Store) saveEntries(entries map[string]Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.medium.Set(s.policy.StorageKey, string(raw))
}

// ClearAll removes every cached entry.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.medium.Delete(s.policy.StorageKey)
}

// Stats returns a read-only snapshot of the cache.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var actual int64
	if raw, ok := s.medium.Get(s.policy.StorageKey); ok {
		actual = int64(len(raw))
	}
	entries := s.loadEntries()

	st := Stats{
		Count:                len(entries),
		ActualPersistedBytes: actual,
		UsagePercent:         math.Round(float64(actual)/float64(s.policy.Budget)*1000) / 10,
	}
	for _, e := range entries {
		st.TotalLogicalBytes += e.Size
		downloadedAt := e.DownloadedAt
		if st.OldestTimestamp == nil || downloadedAt.Before(*st.OldestTimestamp) {
			st.OldestTimestamp = &downloadedAt
		}
		if st.NewestTimestamp == nil || downloadedAt.After(*st.NewestTimestamp) {
			st.NewestTimestamp = &downloadedAt
		}
	}
	return st
}
