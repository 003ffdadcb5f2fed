package mediacache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falstudio/falstudio/internal/medium"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.StorageKey = "test_media_cache"
	return p
}

// mediaServer serves a fixed payload and counts fetches.
func mediaServer(t *testing.T, payload []byte, contentType string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", contentType)
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, &fetches
}

func TestResolvePassThroughForLocalInput(t *testing.T) {
	srv, fetches := mediaServer(t, []byte("png"), "image/png")
	_ = srv

	store := New(medium.NewMemory(0), testPolicy(), discardLogger())

	for _, input := range []string{
		"data:image/png;base64,aGVsbG8=",
		"blob:abc123",
		"/static/logo.png",
		"",
	} {
		got, outcome := store.Resolve(context.Background(), input)
		assert.Equal(t, input, got)
		assert.Equal(t, OutcomePassThrough, outcome)
	}
	assert.Equal(t, int64(0), fetches.Load())
}

func TestResolveDownloadsAndCaches(t *testing.T) {
	payload := []byte("fake image bytes")
	srv, fetches := mediaServer(t, payload, "image/png")

	store := New(medium.NewMemory(0), testPolicy(), discardLogger())

	url := srv.URL + "/result.png"
	got, outcome := store.Resolve(context.Background(), url)
	require.Equal(t, OutcomeDownloaded, outcome)
	assert.Equal(t, EncodeDataURL("image/png", payload), got)

	// Second resolve is a cache hit with no network access.
	again, outcome := store.Resolve(context.Background(), url)
	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, got, again)
	assert.Equal(t, int64(1), fetches.Load())

	st := store.Stats()
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, int64(len(payload)), st.TotalLogicalBytes)
}

func TestResolveFailsOpenOnFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := New(medium.NewMemory(0), testPolicy(), discardLogger())

	url := srv.URL + "/missing.png"
	got, outcome := store.Resolve(context.Background(), url)
	assert.Equal(t, url, got)
	assert.Equal(t, OutcomeFallback, outcome)
	assert.Equal(t, 0, store.Stats().Count)
}

func TestResolveFailsOpenOnUnreachableHost(t *testing.T) {
	store := New(medium.NewMemory(0), testPolicy(), discardLogger(),
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))

	url := "http://127.0.0.1:1/unreachable.png"
	got, outcome := store.Resolve(context.Background(), url)
	assert.Equal(t, url, got)
	assert.Equal(t, OutcomeFallback, outcome)
}

func TestResolveDegradesWhenPersistAlwaysFails(t *testing.T) {
	payload := []byte("fake image bytes")
	srv, _ := mediaServer(t, payload, "image/png")

	mem := medium.NewMemory(0)
	mem.FailSets = true
	store := New(mem, testPolicy(), discardLogger())

	got, outcome := store.Resolve(context.Background(), srv.URL+"/a.png")
	assert.Equal(t, OutcomeDegraded, outcome)
	assert.Equal(t, EncodeDataURL("image/png", payload), got)

	// The entry never made it to the medium.
	assert.Equal(t, 0, store.Stats().Count)
}

func TestClearAllIsTotal(t *testing.T) {
	payload := []byte("fake image bytes")
	srv, fetches := mediaServer(t, payload, "image/png")

	store := New(medium.NewMemory(0), testPolicy(), discardLogger())

	url := srv.URL + "/a.png"
	_, outcome := store.Resolve(context.Background(), url)
	require.Equal(t, OutcomeDownloaded, outcome)

	store.ClearAll()
	assert.Equal(t, 0, store.Stats().Count)

	// A previously cached URL is a miss again.
	_, outcome = store.Resolve(context.Background(), url)
	assert.Equal(t, OutcomeDownloaded, outcome)
	assert.Equal(t, int64(2), fetches.Load())
}

func TestStatsOnEmptyStore(t *testing.T) {
	store := New(medium.NewMemory(0), testPolicy(), discardLogger())

	st := store.Stats()
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, int64(0), st.TotalLogicalBytes)
	assert.Equal(t, int64(0), st.ActualPersistedBytes)
	assert.Equal(t, 0.0, st.UsagePercent)
	assert.Nil(t, st.OldestTimestamp)
	assert.Nil(t, st.NewestTimestamp)
}

func TestStatsTimestamps(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := medium.NewMemory(0)
	store := New(mem, testPolicy(), discardLogger())

	seedEntries(t, mem, store.policy.StorageKey, map[string]Entry{
		"https://a": {OriginalURL: "https://a", LocalDataURL: "data:a", Size: 1, DownloadedAt: now.Add(-48 * time.Hour)},
		"https://b": {OriginalURL: "https://b", LocalDataURL: "data:b", Size: 2, DownloadedAt: now},
	})

	st := store.Stats()
	require.NotNil(t, st.OldestTimestamp)
	require.NotNil(t, st.NewestTimestamp)
	assert.Equal(t, now.Add(-48*time.Hour), *st.OldestTimestamp)
	assert.Equal(t, now, *st.NewestTimestamp)
	assert.Equal(t, int64(3), st.TotalLogicalBytes)
}

func TestCorruptStateReadsAsEmpty(t *testing.T) {
	mem := medium.NewMemory(0)
	policy := testPolicy()
	require.NoError(t, mem.Set(policy.StorageKey, "{not json"))

	store := New(mem, policy, discardLogger())
	assert.Equal(t, 0, store.Stats().Count)
}

func TestEvictionOrderLargestFirstOldestTiebreak(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := New(medium.NewMemory(0), testPolicy(), discardLogger(),
		WithClock(func() time.Time { return now }))

	entries := map[string]Entry{
		"https://a": {OriginalURL: "https://a", Size: 5, DownloadedAt: now.Add(-24 * time.Hour)},
		"https://b": {OriginalURL: "https://b", Size: 3, DownloadedAt: now.Add(-5 * 24 * time.Hour)},
		"https://c": {OriginalURL: "https://c", Size: 3, DownloadedAt: now.Add(-24 * time.Hour)},
	}

	order := evictionOrder(entries)
	require.Len(t, order, 3)
	assert.Equal(t, "https://a", order[0].OriginalURL)
	assert.Equal(t, "https://b", order[1].OriginalURL)
	assert.Equal(t, "https://c", order[2].OriginalURL)

	// Freeing 5 bytes sacrifices only the single largest entry.
	freed := store.freeBytes(entries, 5, "")
	assert.Equal(t, int64(5), freed)
	assert.NotContains(t, entries, "https://a")
	assert.Contains(t, entries, "https://b")
	assert.Contains(t, entries, "https://c")
}

func TestMaintenanceReducesUsageBelowThreshold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := medium.NewMemory(0)

	policy := testPolicy()
	policy.Budget = 2000
	store := New(mem, policy, discardLogger(),
		WithClock(func() time.Time { return now }))

	// Recent entries only, so the age passes free nothing and the
	// size-based shrink has to do the work.
	entries := make(map[string]Entry)
	for _, e := range []struct {
		url  string
		size int
		age  time.Duration
	}{
		{"https://x/1", 600, time.Hour},
		{"https://x/2", 500, 2 * time.Hour},
		{"https://x/3", 400, 3 * time.Hour},
		{"https://x/4", 300, 4 * time.Hour},
	} {
		entries[e.url] = Entry{
			OriginalURL:  e.url,
			LocalDataURL: "data:application/octet-stream;base64," + strings.Repeat("A", e.size),
			Size:         int64(e.size),
			DownloadedAt: now.Add(-e.age),
		}
	}
	seedEntries(t, mem, policy.StorageKey, entries)
	require.Greater(t, store.Stats().UsagePercent, 80.0)

	store.maintenance()

	st := store.Stats()
	assert.LessOrEqual(t, st.UsagePercent, 80.0)
	assert.Greater(t, st.Count, 0)
}

func TestMaintenanceEvictsByAgeFirst(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := medium.NewMemory(0)

	policy := testPolicy()
	policy.Budget = 1000
	store := New(mem, policy, discardLogger(),
		WithClock(func() time.Time { return now }))

	stale := Entry{
		OriginalURL:  "https://x/stale",
		LocalDataURL: "data:application/octet-stream;base64," + strings.Repeat("A", 800),
		Size:         800,
		DownloadedAt: now.Add(-8 * 24 * time.Hour),
	}
	fresh := Entry{
		OriginalURL:  "https://x/fresh",
		LocalDataURL: "data:application/octet-stream;base64," + strings.Repeat("B", 100),
		Size:         100,
		DownloadedAt: now.Add(-time.Hour),
	}
	seedEntries(t, mem, policy.StorageKey, map[string]Entry{
		stale.OriginalURL: stale,
		fresh.OriginalURL: fresh,
	})

	store.maintenance()

	remaining := store.loadEntries()
	assert.NotContains(t, remaining, stale.OriginalURL)
	assert.Contains(t, remaining, fresh.OriginalURL)
}

func TestPersistWithRetryEvictsOldEntries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Capacity fits roughly one large entry, so the first write attempt
	// fails until the stale entry is evicted by the ladder.
	mem := medium.NewMemory(1200)

	policy := testPolicy()
	store := New(mem, policy, discardLogger(),
		WithClock(func() time.Time { return now }))

	stale := Entry{
		OriginalURL:  "https://x/stale",
		LocalDataURL: "data:application/octet-stream;base64," + strings.Repeat("A", 900),
		Size:         900,
		DownloadedAt: now.Add(-4 * 24 * time.Hour),
	}
	seedEntries(t, mem, policy.StorageKey, map[string]Entry{stale.OriginalURL: stale})

	fresh := Entry{
		OriginalURL:  "https://x/fresh",
		LocalDataURL: "data:application/octet-stream;base64," + strings.Repeat("B", 600),
		Size:         600,
		DownloadedAt: now,
	}
	require.True(t, store.persistWithRetry(fresh))

	remaining := store.loadEntries()
	assert.Contains(t, remaining, fresh.OriginalURL)
	assert.NotContains(t, remaining, stale.OriginalURL)
}

func TestPersistWithRetryFreesBySizeWhenAgePassFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := medium.NewMemory(1200)

	policy := testPolicy()
	policy.RetryFreeFloor = 100
	store := New(mem, policy, discardLogger(),
		WithClock(func() time.Time { return now }))

	// Recent entries: the 3-day age pass frees nothing, so the ladder
	// falls through to the size-based pass.
	recent := Entry{
		OriginalURL:  "https://x/recent",
		LocalDataURL: "data:application/octet-stream;base64," + strings.Repeat("A", 900),
		Size:         900,
		DownloadedAt: now.Add(-time.Hour),
	}
	seedEntries(t, mem, policy.StorageKey, map[string]Entry{recent.OriginalURL: recent})

	fresh := Entry{
		OriginalURL:  "https://x/fresh",
		LocalDataURL: "data:application/octet-stream;base64," + strings.Repeat("B", 600),
		Size:         600,
		DownloadedAt: now,
	}
	require.True(t, store.persistWithRetry(fresh))

	remaining := store.loadEntries()
	assert.Contains(t, remaining, fresh.OriginalURL)
	assert.NotContains(t, remaining, recent.OriginalURL)
}

func TestConcurrentResolvesShareOneDownload(t *testing.T) {
	payload := []byte("shared payload")
	var fetches atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		<-release
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	store := New(medium.NewMemory(0), testPolicy(), discardLogger())
	url := srv.URL + "/shared.png"

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			got, _ := store.Resolve(context.Background(), url)
			results <- got
		}()
	}

	// Give both goroutines time to join the flight before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)

	first := <-results
	second := <-results
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), fetches.Load())
}

func seedEntries(t *testing.T, m medium.Medium, key string, entries map[string]Entry) {
	t.Helper()
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, m.Set(key, string(raw)))
}
