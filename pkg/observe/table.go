package observe

import (
	"errors"
	"sync"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
)

// Observation errors.
var (
	ErrNotFound          = errors.New("observation not found")
	ErrResourceExhausted = errors.New("maximum observations reached")
	ErrStale             = errors.New("stale notification")
)

// Observe sequence numbers are 24 bits wide.
const (
	SeqMask = 1<<24 - 1

	// seqHalf and reorderWindow follow the freshness rule of RFC 7641 §3.4.
	seqHalf       = 1 << 23
	reorderWindow = 128 * time.Second
)

// DefaultMaxObservations bounds the table.
const DefaultMaxObservations = 256

// CancelReason tells why an observation ended.
type CancelReason uint8

const (
	// CancelDeregister is an explicit Observe(1) or a local cancel.
	CancelDeregister CancelReason = iota

	// CancelReset is a Reset answering a notification.
	CancelReset

	// CancelTimeout is a Confirmable notification that was never acknowledged.
	CancelTimeout

	// CancelPeerReset is a dropped client association.
	CancelPeerReset
)

// String returns the reason name.
func (r CancelReason) String() string {
	switch r {
	case CancelDeregister:
		return "DEREGISTER"
	case CancelReset:
		return "RESET"
	case CancelTimeout:
		return "TIMEOUT"
	case CancelPeerReset:
		return "PEER_RESET"
	default:
		return "UNKNOWN"
	}
}

// Config holds table configuration.
type Config struct {
	// MaxObservations is the maximum number of observations.
	MaxObservations int

	// Now is the clock. Default time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default table configuration.
func DefaultConfig() Config {
	return Config{MaxObservations: DefaultMaxObservations}
}

// Observation is one Observe relationship.
type Observation struct {
	Peer  string
	Token []byte
	Path  lwm2m.Path

	// Attributes are the Write-Attributes in effect when observing started.
	Attributes lwm2m.Attributes

	// NextSeq is the Observe value of the next outgoing notification.
	NextSeq uint32

	// LastMessageID is the message ID of the last notification.
	LastMessageID uint16

	// LastSeq and LastSeen describe the last accepted incoming
	// notification. HasLast is false until the first one.
	LastSeq  uint32
	LastSeen time.Time
	HasLast  bool

	// Notifications counts notifications in either direction.
	Notifications int

	CreatedAt time.Time
}

type key struct {
	peer  string
	token string
}

// Table holds the observations of one server.
type Table struct {
	mu sync.RWMutex

	config       Config
	observations map[key]*Observation

	// Index by peer and notification message ID for Reset matching
	byMessageID map[msgKey]key

	onCancel func(Observation, CancelReason)
}

type msgKey struct {
	peer  string
	msgID uint16
}

// NewTable creates a table with default configuration.
func NewTable() *Table {
	return NewTableWithConfig(DefaultConfig())
}

// NewTableWithConfig creates a table with custom configuration.
func NewTableWithConfig(config Config) *Table {
	if config.MaxObservations <= 0 {
		config.MaxObservations = DefaultMaxObservations
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Table{
		config:       config,
		observations: make(map[key]*Observation),
		byMessageID:  make(map[msgKey]key),
	}
}

// OnCancel sets the callback for ended observations. It is called outside
// the table lock.
func (t *Table) OnCancel(fn func(Observation, CancelReason)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCancel = fn
}

// Register starts (or restarts) the observation for (peer, token).
// The sequence starts at 0.
func (t *Table) Register(peer string, token []byte, path lwm2m.Path, attrs lwm2m.Attributes) (Observation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{peer: peer, token: string(token)}
	if old, exists := t.observations[k]; exists {
		t.unindexLocked(old)
	} else if len(t.observations) >= t.config.MaxObservations {
		return Observation{}, ErrResourceExhausted
	}

	obs := &Observation{
		Peer:       peer,
		Token:      append([]byte(nil), token...),
		Path:       path,
		Attributes: append(lwm2m.Attributes(nil), attrs...),
		CreatedAt:  t.config.Now(),
	}
	t.observations[k] = obs
	return *obs, nil
}

// Notify reserves the sequence number for an outgoing notification sent
// with msgID and returns it. Sequence numbers wrap at 24 bits.
func (t *Table) Notify(peer string, token []byte, msgID uint16) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obs, exists := t.observations[key{peer: peer, token: string(token)}]
	if !exists {
		return 0, ErrNotFound
	}
	seq := obs.NextSeq
	obs.NextSeq = (seq + 1) & SeqMask
	t.indexLocked(obs, msgID)
	obs.Notifications++
	return seq, nil
}

// Observed records an incoming notification. Notifications older than the
// last accepted one return ErrStale and leave the state unchanged.
func (t *Table) Observed(peer string, token []byte, seq uint32, msgID uint16) (Observation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obs, exists := t.observations[key{peer: peer, token: string(token)}]
	if !exists {
		return Observation{}, ErrNotFound
	}
	now := t.config.Now()
	if obs.HasLast && !Fresher(obs.LastSeq, obs.LastSeen, seq&SeqMask, now) {
		return *obs, ErrStale
	}
	obs.LastSeq = seq & SeqMask
	obs.LastSeen = now
	obs.HasLast = true
	t.indexLocked(obs, msgID)
	obs.Notifications++
	return *obs, nil
}

// Cancel ends the observation for (peer, token).
func (t *Table) Cancel(peer string, token []byte) error {
	t.mu.Lock()
	obs, exists := t.observations[key{peer: peer, token: string(token)}]
	if !exists {
		t.mu.Unlock()
		return ErrNotFound
	}
	t.removeLocked(obs)
	onCancel := t.onCancel
	t.mu.Unlock()

	if onCancel != nil {
		onCancel(*obs, CancelDeregister)
	}
	return nil
}

// CancelByMessageID ends the observation whose last notification used
// msgID. It returns false if no observation matches.
func (t *Table) CancelByMessageID(peer string, msgID uint16) (Observation, bool) {
	return t.cancelByMessageID(peer, msgID, CancelReset)
}

// Abandon ends the observation of a Confirmable notification that was
// never acknowledged.
func (t *Table) Abandon(peer string, msgID uint16) (Observation, bool) {
	return t.cancelByMessageID(peer, msgID, CancelTimeout)
}

func (t *Table) cancelByMessageID(peer string, msgID uint16, reason CancelReason) (Observation, bool) {
	t.mu.Lock()
	k, exists := t.byMessageID[msgKey{peer: peer, msgID: msgID}]
	if !exists {
		t.mu.Unlock()
		return Observation{}, false
	}
	obs := t.observations[k]
	t.removeLocked(obs)
	onCancel := t.onCancel
	t.mu.Unlock()

	if onCancel != nil {
		onCancel(*obs, reason)
	}
	return *obs, true
}

// Purge ends every observation of peer.
func (t *Table) Purge(peer string) int {
	t.mu.Lock()
	var removed []Observation
	for _, obs := range t.observations {
		if obs.Peer == peer {
			t.removeLocked(obs)
			removed = append(removed, *obs)
		}
	}
	onCancel := t.onCancel
	t.mu.Unlock()

	if onCancel != nil {
		for _, obs := range removed {
			onCancel(obs, CancelPeerReset)
		}
	}
	return len(removed)
}

// Lookup returns the observation for (peer, token).
func (t *Table) Lookup(peer string, token []byte) (Observation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	obs, exists := t.observations[key{peer: peer, token: string(token)}]
	if !exists {
		return Observation{}, false
	}
	return *obs, true
}

// ForPath returns the observations whose path contains p or lies within
// it, across all peers.
func (t *Table) ForPath(p lwm2m.Path) []Observation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Observation
	for _, obs := range t.observations {
		if obs.Path.Contains(p) || p.Contains(obs.Path) {
			out = append(out, *obs)
		}
	}
	return out
}

// Len returns the number of observations.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.observations)
}

func (t *Table) indexLocked(obs *Observation, msgID uint16) {
	t.unindexLocked(obs)
	obs.LastMessageID = msgID
	t.byMessageID[msgKey{peer: obs.Peer, msgID: msgID}] = key{peer: obs.Peer, token: string(obs.Token)}
}

func (t *Table) unindexLocked(obs *Observation) {
	mk := msgKey{peer: obs.Peer, msgID: obs.LastMessageID}
	if k, ok := t.byMessageID[mk]; ok && k.token == string(obs.Token) {
		delete(t.byMessageID, mk)
	}
}

func (t *Table) removeLocked(obs *Observation) {
	t.unindexLocked(obs)
	delete(t.observations, key{peer: obs.Peer, token: string(obs.Token)})
}

// Fresher reports whether a notification (v2, t2) is newer than (v1, t1).
func Fresher(v1 uint32, t1 time.Time, v2 uint32, t2 time.Time) bool {
	switch {
	case v1 < v2 && v2-v1 < seqHalf:
		return true
	case v1 > v2 && v1-v2 > seqHalf:
		return true
	}
	return t2.After(t1.Add(reorderWindow))
}
