// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryCache_GetSetExpire(t *testing.T) {
	c := NewMemoryCache(0)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("channels", []string{"a"}, 5*time.Minute)
	v, ok := c.Get("channels")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, v)

	now = now.Add(5 * time.Minute)
	_, ok = c.Get("channels")
	assert.False(t, ok)

	assert.Equal(t, 1, c.evictExpired())
	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.Evictions)
	assert.Zero(t, st.Size)
}

func TestMemoryCache_DeleteClear(t *testing.T) {
	c := NewMemoryCache(0)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	c.Clear()
	assert.Zero(t, c.Stats().Size)
}

func TestMemoryCache_JanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewMemoryCache(time.Millisecond)
	c.Set("a", 1, time.Nanosecond)
	assert.Eventually(t, func() bool { return c.Stats().Size == 0 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()
}
