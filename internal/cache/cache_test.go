// File: internal/cache/cache_test.go

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), ttl, 8, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, time.Hour)
	c.Put(NamespaceHistory, "head-abc123", payload{Name: "scan", Count: 42})

	var got payload
	require.True(t, c.Get(NamespaceHistory, "head-abc123", &got))
	assert.Equal(t, payload{Name: "scan", Count: 42}, got)
}

func TestGetMiss(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, time.Hour)
	var got payload
	assert.False(t, c.Get(NamespaceIntent, "nope", &got))
}

func TestGetUnknownNamespace(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, time.Hour)
	var got payload
	assert.False(t, c.Get("bogus", "key", &got))
}

func TestEntrySurvivesMemoryEviction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, time.Hour, 8, zap.NewNop())
	require.NoError(t, err)
	c.Put(NamespaceIntent, "sha-1", payload{Name: "intent"})

	// Fresh instance has a cold LRU; the entry must come back from disk.
	c2, err := New(dir, time.Hour, 8, zap.NewNop())
	require.NoError(t, err)
	var got payload
	require.True(t, c2.Get(NamespaceIntent, "sha-1", &got))
	assert.Equal(t, "intent", got.Name)
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, time.Nanosecond)
	c.Put(NamespaceExplanations, "fp", payload{Name: "stale"})
	time.Sleep(5 * time.Millisecond)

	var got payload
	assert.False(t, c.Get(NamespaceExplanations, "fp", &got))
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, time.Hour, 8, zap.NewNop())
	require.NoError(t, err)

	path := filepath.Join(dir, NamespaceHistory, Key("bad")+".json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	var got payload
	assert.False(t, c.Get(NamespaceHistory, "bad", &got))
}

func TestClear(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, time.Hour)
	c.Put(NamespaceHistory, "a", payload{})
	c.Put(NamespaceIntent, "b", payload{})

	require.NoError(t, c.Clear())

	var got payload
	assert.False(t, c.Get(NamespaceHistory, "a", &got))
	assert.False(t, c.Get(NamespaceIntent, "b", &got))
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, time.Nanosecond)
	c.Put(NamespaceHistory, "a", payload{})
	c.Put(NamespaceIntent, "b", payload{})
	time.Sleep(5 * time.Millisecond)

	removed, err := c.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestStats(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, time.Hour)
	c.Put(NamespaceHistory, "a", payload{Name: "x"})
	c.Put(NamespaceHistory, "b", payload{Name: "y"})

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats[NamespaceHistory].Entries)
	assert.Positive(t, stats[NamespaceHistory].Bytes)
	assert.Zero(t, stats[NamespaceExplanations].Entries)
}

func TestKeyIsStableAndFilenameSafe(t *testing.T) {
	t.Parallel()

	k := Key("repo:/some/path@HEAD")
	assert.Equal(t, Key("repo:/some/path@HEAD"), k)
	assert.Len(t, k, 32)
	assert.NotContains(t, k, "/")
}
