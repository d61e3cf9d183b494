package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(cfg Config) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg.Now = clock.Now
	return New(cfg), clock
}

func TestCachePutGet(t *testing.T) {
	c, _ := newTestCache(Config{})
	k := NewKey("127.0.0.1:5683", 0x1337, []byte{1, 2})

	_, ok := c.Get(k)
	assert.False(t, ok)

	resp := []byte{0x60, 0x45, 0x13, 0x37}
	require.NoError(t, c.Put(k, resp))
	resp[0] = 0

	got, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, []byte{0x60, 0x45, 0x13, 0x37}, got)

	// Same message ID with another token is another request.
	_, ok = c.Get(NewKey("127.0.0.1:5683", 0x1337, []byte{1}))
	assert.False(t, ok)
	_, ok = c.Get(NewKey("127.0.0.1:5684", 0x1337, []byte{1, 2}))
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c, clock := newTestCache(Config{Lifetime: time.Minute})
	k := NewKey("p", 1, nil)
	require.NoError(t, c.Put(k, []byte{1}))

	clock.Advance(59 * time.Second)
	_, ok := c.Get(k)
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(k)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheEvictsOldest(t *testing.T) {
	c, clock := newTestCache(Config{MaxEntries: 2})

	require.NoError(t, c.Put(NewKey("p", 1, nil), []byte{1}))
	clock.Advance(time.Second)
	require.NoError(t, c.Put(NewKey("p", 2, nil), []byte{2}))
	clock.Advance(time.Second)
	// Re-storing 1 makes it the newest.
	require.NoError(t, c.Put(NewKey("p", 1, nil), []byte{1}))
	require.NoError(t, c.Put(NewKey("p", 3, nil), []byte{3}))

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(NewKey("p", 2, nil))
	assert.False(t, ok)
	_, ok = c.Get(NewKey("p", 1, nil))
	assert.True(t, ok)
	_, ok = c.Get(NewKey("p", 3, nil))
	assert.True(t, ok)
}

func TestCacheEntrySize(t *testing.T) {
	c, _ := newTestCache(Config{MaxEntrySize: 4})
	err := c.Put(NewKey("p", 1, nil), make([]byte, 5))
	assert.ErrorIs(t, err, ErrEntryTooLarge)
	assert.Equal(t, 0, c.Len())
}

func TestCachePurgeAndClear(t *testing.T) {
	c, _ := newTestCache(Config{})
	require.NoError(t, c.Put(NewKey("a", 1, nil), []byte{1}))
	require.NoError(t, c.Put(NewKey("a", 2, nil), []byte{1}))
	require.NoError(t, c.Put(NewKey("b", 1, nil), []byte{1}))

	c.Purge("a")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(NewKey("b", 1, nil))
	assert.True(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	require.NoError(t, c.Put(NewKey("c", 1, nil), []byte{1}))
	assert.Equal(t, 1, c.Len())
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "p/4919/0102", NewKey("p", 0x1337, []byte{1, 2}).String())
}
