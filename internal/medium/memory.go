package medium

import "sync"

// MemoryMedium is an in-process Medium with an optional byte capacity.
// It is the default driver and the substitute medium used by tests.
type MemoryMedium struct {
	mu       sync.Mutex
	capacity int64
	values   map[string]string

	// FailSets forces every Set to fail with ErrQuotaExceeded. Tests use
	// it to exercise terminal write-failure paths.
	FailSets bool
}

// NewMemory creates a MemoryMedium. A capacity of 0 means unlimited.
func NewMemory(capacity int64) *MemoryMedium {
	return &MemoryMedium{
		capacity: capacity,
		values:   make(map[string]string),
	}
}

func (m *MemoryMedium) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryMedium) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSets {
		return ErrQuotaExceeded
	}
	if m.capacity > 0 {
		usage := int64(0)
		for k, v := range m.values {
			if k == key {
				continue
			}
			usage += int64(len(v))
		}
		if usage+int64(len(value)) > m.capacity {
			return ErrQuotaExceeded
		}
	}
	m.values[key] = value
	return nil
}

func (m *MemoryMedium) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
}
