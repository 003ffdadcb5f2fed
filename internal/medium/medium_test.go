package medium

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMediumRoundtrip(t *testing.T) {
	m := NewMemory(0)

	_, ok := m.Get("missing")
	assert.False(t, ok)

	require.NoError(t, m.Set("k", "v"))
	got, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	require.NoError(t, m.Set("k", "v2"))
	got, _ = m.Get("k")
	assert.Equal(t, "v2", got)

	m.Delete("k")
	_, ok = m.Get("k")
	assert.False(t, ok)

	// Deleting a missing key is a no-op.
	m.Delete("k")
}

func TestMemoryMediumQuota(t *testing.T) {
	m := NewMemory(10)

	require.NoError(t, m.Set("a", strings.Repeat("x", 6)))
	err := m.Set("b", strings.Repeat("y", 6))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// Replacing an existing value only counts the delta.
	require.NoError(t, m.Set("a", strings.Repeat("z", 10)))
}

func TestMemoryMediumFailSets(t *testing.T) {
	m := NewMemory(0)
	m.FailSets = true
	assert.ErrorIs(t, m.Set("a", "v"), ErrQuotaExceeded)
}

func TestFileMediumRoundtrip(t *testing.T) {
	m, err := NewFile(t.TempDir(), 0, nil)
	require.NoError(t, err)

	_, ok := m.Get("missing")
	assert.False(t, ok)

	require.NoError(t, m.Set("cache/images", `{"a":1}`))
	got, ok := m.Get("cache/images")
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, got)

	require.NoError(t, m.Set("cache/images", `{"a":2}`))
	got, _ = m.Get("cache/images")
	assert.Equal(t, `{"a":2}`, got)

	m.Delete("cache/images")
	_, ok = m.Get("cache/images")
	assert.False(t, ok)
}

func TestFileMediumQuota(t *testing.T) {
	m, err := NewFile(t.TempDir(), 10, nil)
	require.NoError(t, err)

	require.NoError(t, m.Set("a", strings.Repeat("x", 6)))
	assert.ErrorIs(t, m.Set("b", strings.Repeat("y", 6)), ErrQuotaExceeded)

	// Replacing the only value within capacity succeeds.
	require.NoError(t, m.Set("a", strings.Repeat("z", 10)))
}

func TestFileMediumKeysAreFilesystemSafe(t *testing.T) {
	m, err := NewFile(t.TempDir(), 0, nil)
	require.NoError(t, err)

	key := "weird/../key with spaces?*"
	require.NoError(t, m.Set(key, "v"))
	got, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, "v", got)
}
