package server

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
	"github.com/lwm2m-harness/lwm2m-go/pkg/persistence"
	"github.com/lwm2m-harness/lwm2m-go/pkg/version"
)

// DefaultLifetime is the registration lifetime when Register has no lt=.
const DefaultLifetime = 86400 * time.Second

// ErrUnknownLocation is returned for Update and De-register of a location
// nobody registered.
var ErrUnknownLocation = errors.New("unknown registration location")

// Registration is one registered client.
type Registration struct {
	Endpoint string
	Location coap.Path
	Lifetime time.Duration
	Binding  string
	Version  version.Version
	Links    lwm2m.Links
	Queue    bool

	// Peer is the address the last Register or Update came from.
	Peer string

	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the lifetime elapsed since the last update.
func (r *Registration) Expired(now time.Time) bool {
	return r.Lifetime > 0 && now.Sub(r.UpdatedAt) > r.Lifetime
}

func (r *Registration) clone() *Registration {
	c := *r
	c.Location = append(coap.Path(nil), r.Location...)
	c.Links = append(lwm2m.Links(nil), r.Links...)
	return &c
}

func (r *Registration) record() persistence.Registration {
	rec := persistence.Registration{
		Endpoint:     r.Endpoint,
		Location:     r.Location.String(),
		Lifetime:     r.Lifetime,
		Binding:      r.Binding,
		Links:        r.Links.String(),
		Queue:        r.Queue,
		RegisteredAt: r.RegisteredAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Version != (version.Version{}) {
		rec.Version = r.Version.String()
	}
	return rec
}

func registrationFromRecord(rec persistence.Registration) (*Registration, error) {
	r := &Registration{
		Endpoint:     rec.Endpoint,
		Location:     coap.ParsePath(rec.Location),
		Lifetime:     rec.Lifetime,
		Binding:      rec.Binding,
		Queue:        rec.Queue,
		RegisteredAt: rec.RegisteredAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if rec.Version != "" {
		v, err := version.Parse(rec.Version)
		if err != nil {
			return nil, err
		}
		r.Version = v
	}
	if rec.Links != "" {
		links, err := lwm2m.ParseLinks(rec.Links)
		if err != nil {
			return nil, err
		}
		r.Links = links
	}
	return r, nil
}

// registry holds registrations keyed by location.
type registry struct {
	byLocation map[string]*Registration
	next       uint32
}

func newRegistry() *registry {
	return &registry{byLocation: make(map[string]*Registration)}
}

func (g *registry) byEndpoint(ep string) *Registration {
	for _, r := range g.byLocation {
		if r.Endpoint == ep {
			return r
		}
	}
	return nil
}

// allocate picks the location for a new endpoint. A re-registering
// endpoint keeps its location.
func (g *registry) allocate(ep string, fixed coap.Path, unique bool) coap.Path {
	if r := g.byEndpoint(ep); r != nil {
		return r.Location
	}
	if !unique {
		return fixed
	}
	g.next++
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return coap.Path{"rd", id}
}

func (g *registry) put(r *Registration) {
	if old := g.byEndpoint(r.Endpoint); old != nil {
		delete(g.byLocation, old.Location.String())
	}
	g.byLocation[r.Location.String()] = r
}

func (g *registry) get(location coap.Path) (*Registration, bool) {
	r, ok := g.byLocation[location.String()]
	return r, ok
}

func (g *registry) remove(location coap.Path) (*Registration, bool) {
	key := location.String()
	r, ok := g.byLocation[key]
	if ok {
		delete(g.byLocation, key)
	}
	return r, ok
}

// list returns copies sorted by location.
func (g *registry) list() []*Registration {
	out := make([]*Registration, 0, len(g.byLocation))
	for _, r := range g.byLocation {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Location.String() < out[j].Location.String()
	})
	return out
}

// expire drops registrations whose lifetime elapsed.
func (g *registry) expire(now time.Time) []*Registration {
	var gone []*Registration
	for key, r := range g.byLocation {
		if r.Expired(now) {
			delete(g.byLocation, key)
			gone = append(gone, r)
		}
	}
	return gone
}
