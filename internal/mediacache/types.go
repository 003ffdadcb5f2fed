package mediacache

import "time"

// Entry is one cached media item, keyed by its original remote URL. Entries
// are immutable once written; re-caching a URL replaces the whole entry.
type Entry struct {
	OriginalURL  string    `json:"originalUrl"`
	LocalDataURL string    `json:"localDataUrl"`
	ContentType  string    `json:"contentType"`
	// Size is the raw binary payload length. Budget accounting uses it
	// rather than the larger base64 string length.
	Size         int64     `json:"size"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// Cache configuration defaults.
const (
	DefaultStorageKey = "fal_local_images"
	DefaultBudget     = 50 * 1024 * 1024 // 50MB
)

// Policy holds the budget and eviction tuning for a Store. The thresholds
// and age windows are defaults, not invariants; tests construct tighter
// policies around tiny budgets.
type Policy struct {
	// StorageKey is the medium key holding the serialized entry map.
	StorageKey string

	// Budget is the advisory ceiling in bytes. The persisted (encoded)
	// byte length is what maintenance measures against it.
	Budget int64

	// MaintenanceThreshold is the persisted-usage fraction above which
	// proactive cleanup runs before a download.
	MaintenanceThreshold float64

	// MaintenanceTarget is the usage fraction cleanup frees down to when
	// age-based passes alone are not enough.
	MaintenanceTarget float64

	// Age windows for the proactive cleanup passes.
	MaintenanceMaxAge time.Duration
	MaintenanceMidAge time.Duration

	// RetryMaxAge is the age window for the first write-retry pass,
	// RetryAggressiveAge for the last-resort pass.
	RetryMaxAge        time.Duration
	RetryAggressiveAge time.Duration

	// RetryFreeFloor is the minimum number of bytes the size-based
	// write-retry pass frees, regardless of the incoming entry's size.
	RetryFreeFloor int64
}

// DefaultPolicy returns the production tuning.
func DefaultPolicy() Policy {
	return Policy{
		StorageKey:           DefaultStorageKey,
		Budget:               DefaultBudget,
		MaintenanceThreshold: 0.80,
		MaintenanceTarget:    0.60,
		MaintenanceMaxAge:    7 * 24 * time.Hour,
		MaintenanceMidAge:    3 * 24 * time.Hour,
		RetryMaxAge:          3 * 24 * time.Hour,
		RetryAggressiveAge:   24 * time.Hour,
		RetryFreeFloor:       10 * 1024 * 1024,
	}
}

// Outcome reports how a Resolve call produced its renderable URL. Resolve
// never fails outright; the outcome makes degraded paths observable.
type Outcome int

const (
	// OutcomePassThrough means the input was already local/embedded and
	// was returned unchanged.
	OutcomePassThrough Outcome = iota
	// OutcomeHit means the URL was served from the cache.
	OutcomeHit
	// OutcomeDownloaded means the media was fetched, embedded, and persisted.
	OutcomeDownloaded
	// OutcomeDegraded means the media was fetched and embedded but could
	// not be persisted; the returned data URL will not survive a restart.
	OutcomeDegraded
	// OutcomeFallback means the download failed and the original remote
	// URL was returned for direct loading.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassThrough:
		return "passthrough"
	case OutcomeHit:
		return "hit"
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Stats is a read-only snapshot of the cache.
type Stats struct {
	Count                int        `json:"count"`
	TotalLogicalBytes    int64      `json:"totalLogicalBytes"`
	ActualPersistedBytes int64      `json:"actualPersistedBytes"`
	UsagePercent         float64    `json:"usagePercent"`
	OldestTimestamp      *time.Time `json:"oldestTimestamp"`
	NewestTimestamp      *time.Time `json:"newestTimestamp"`
}
