// Package cache remembers the responses sent to Confirmable requests so
// that a retransmitted request is answered byte for byte the same within
// the exchange lifetime.
package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/transmission"
)

// Cache defaults.
const (
	DefaultMaxEntries   = 1024
	DefaultMaxEntrySize = 2048
)

// ErrEntryTooLarge is returned by Put for responses above MaxEntrySize.
var ErrEntryTooLarge = errors.New("response too large to cache")

// Config configures a Cache.
type Config struct {
	// MaxEntries bounds the number of cached responses. The oldest entry
	// is evicted first. Default 1024.
	MaxEntries int

	// MaxEntrySize bounds a single cached response. Default 2048.
	MaxEntrySize int

	// Lifetime is how long an entry stays valid. Default
	// EXCHANGE_LIFETIME of the default transmission parameters.
	Lifetime time.Duration

	// Now is the clock. Default time.Now.
	Now func() time.Time
}

// Key identifies a request.
type Key struct {
	Peer      string
	MessageID uint16
	Token     string
}

// NewKey builds a key from a request's identity.
func NewKey(peer string, msgID uint16, token []byte) Key {
	return Key{Peer: peer, MessageID: msgID, Token: string(token)}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%x", k.Peer, k.MessageID, k.Token)
}

type entry struct {
	key      Key
	response []byte
	expires  time.Time
}

// Cache maps request identities to the response bytes sent for them.
type Cache struct {
	mu sync.Mutex

	maxEntries   int
	maxEntrySize int
	lifetime     time.Duration
	now          func() time.Time

	// Arrival order, oldest at the front.
	order   *list.List
	entries map[Key]*list.Element
}

// New creates a cache.
func New(cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxEntrySize <= 0 {
		cfg.MaxEntrySize = DefaultMaxEntrySize
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = transmission.DefaultParams().ExchangeLifetime()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		maxEntries:   cfg.MaxEntries,
		maxEntrySize: cfg.MaxEntrySize,
		lifetime:     cfg.Lifetime,
		now:          cfg.Now,
		order:        list.New(),
		entries:      make(map[Key]*list.Element),
	}
}

// Put stores response for k. An existing entry is replaced and counts as
// a new arrival.
func (c *Cache) Put(k Key, response []byte) error {
	if len(response) > c.maxEntrySize {
		return fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, len(response))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expireLocked(now)

	if el, ok := c.entries[k]; ok {
		c.order.Remove(el)
		delete(c.entries, k)
	}
	for c.order.Len() >= c.maxEntries {
		c.removeLocked(c.order.Front())
	}
	c.entries[k] = c.order.PushBack(&entry{
		key:      k,
		response: append([]byte(nil), response...),
		expires:  now.Add(c.lifetime),
	})
	return nil
}

// Get returns the cached response for k.
func (c *Cache) Get(k Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expires) {
		c.removeLocked(el)
		return nil, false
	}
	return e.response, true
}

// Purge drops every entry of peer.
func (c *Cache) Purge(peer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, el := range c.entries {
		if k.Peer == peer {
			c.removeLocked(el)
		}
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.entries)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(c.now())
	return len(c.entries)
}

func (c *Cache) removeLocked(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.entries, e.key)
}

// expireLocked drops expired entries. Entries expire in arrival order, so
// it stops at the first live one.
func (c *Cache) expireLocked(now time.Time) {
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if now.Before(el.Value.(*entry).expires) {
			return
		}
		c.removeLocked(el)
	}
}
