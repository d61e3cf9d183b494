package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// StateVersion is the current version of the state format.
const StateVersion = 1

// Persistence errors.
var (
	ErrVersionMismatch = errors.New("state version mismatch")
	ErrCorrupt         = errors.New("corrupt state")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// State is the runtime state of the simulated servers.
type State struct {
	// Registrations are the clients registered with the management server.
	Registrations []Registration `cbor:"1,keyasint,omitempty"`

	// Servers are the server accounts written during bootstrap.
	Servers []ServerAccount `cbor:"2,keyasint,omitempty"`

	// NextLocation is the counter used for generated registration locations.
	NextLocation uint32 `cbor:"3,keyasint,omitempty"`
}

// Registration is one registered client.
type Registration struct {
	// Endpoint is the client endpoint name (ep=).
	Endpoint string `cbor:"1,keyasint"`

	// Location is the registration location path, e.g. "/rd/demo".
	Location string `cbor:"2,keyasint"`

	// Lifetime is the registration lifetime (lt=).
	Lifetime time.Duration `cbor:"3,keyasint,omitempty"`

	// Binding is the binding mode (b=).
	Binding string `cbor:"4,keyasint,omitempty"`

	// Version is the LwM2M enabler version (lwm2m=).
	Version string `cbor:"5,keyasint,omitempty"`

	// Links is the registration payload in CoRE link format.
	Links string `cbor:"6,keyasint,omitempty"`

	// Queue is set for queue-mode clients (Q).
	Queue bool `cbor:"7,keyasint,omitempty"`

	RegisteredAt time.Time `cbor:"8,keyasint"`
	UpdatedAt    time.Time `cbor:"9,keyasint,omitempty"`
}

// ServerAccount is a Security/Server object instance pair provisioned by
// the bootstrap server.
type ServerAccount struct {
	ShortServerID uint16        `cbor:"1,keyasint"`
	URI           string        `cbor:"2,keyasint"`
	Bootstrap     bool          `cbor:"3,keyasint,omitempty"`
	SecurityMode  uint8         `cbor:"4,keyasint,omitempty"`
	Lifetime      time.Duration `cbor:"5,keyasint,omitempty"`
	Binding       string        `cbor:"6,keyasint,omitempty"`
}

type envelope struct {
	Version int             `cbor:"1,keyasint"`
	SavedAt time.Time       `cbor:"2,keyasint"`
	State   cbor.RawMessage `cbor:"3,keyasint"`
}

// Marshal encodes state into a version-tagged blob.
func Marshal(state *State, savedAt time.Time) ([]byte, error) {
	inner, err := encMode.Marshal(state)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(envelope{Version: StateVersion, SavedAt: savedAt.UTC(), State: inner})
}

// Unmarshal decodes a blob written by Marshal and returns the state and the
// time it was saved.
func Unmarshal(data []byte) (*State, time.Time, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != StateVersion {
		return nil, time.Time{}, fmt.Errorf("%w: blob version %d, supported %d",
			ErrVersionMismatch, env.Version, StateVersion)
	}
	state := &State{}
	if err := decMode.Unmarshal(env.State, state); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return state, env.SavedAt, nil
}

// Store keeps the state in a file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// Save persists the state to disk.
func (s *Store) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := Marshal(state, time.Now())
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state, _, err := Unmarshal(data)
	return state, err
}

// Clear removes the state file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
