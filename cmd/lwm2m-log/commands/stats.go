package commands

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

// Stats summarizes a capture.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	// Operations counts inbound LwM2M operations, so a request and its
	// response count once.
	Operations map[string]int
	// ResponseCodes counts response codes by dotted form, e.g. "2.05".
	ResponseCodes map[string]int
	Notifications int
	Connections   map[string]*ConnectionStats
	Errors        int
	Start, End    time.Time
}

// ConnectionStats summarizes the events of one transport peer.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
	Endpoint   string
	Location   string
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     map[log.Layer]int{},
		EventsByCategory:  map[log.Category]int{},
		EventsByDirection: map[log.Direction]int{},
		Operations:        map[string]int{},
		ResponseCodes:     map[string]int{},
		Connections:       map[string]*ConnectionStats{},
	}
}

func (s *Stats) add(e log.Event) {
	s.TotalEvents++
	s.EventsByLayer[e.Layer]++
	s.EventsByCategory[e.Category]++
	s.EventsByDirection[e.Direction]++
	if s.Start.IsZero() || e.Timestamp.Before(s.Start) {
		s.Start = e.Timestamp
	}
	if e.Timestamp.After(s.End) {
		s.End = e.Timestamp
	}

	c := s.Connections[e.ConnectionID]
	if c == nil {
		c = &ConnectionStats{FirstSeen: e.Timestamp, LastSeen: e.Timestamp}
		s.Connections[e.ConnectionID] = c
	}
	c.Events++
	if e.Timestamp.After(c.LastSeen) {
		c.LastSeen = e.Timestamp
	}
	if c.RemoteAddr == "" {
		c.RemoteAddr = e.RemoteAddr
	}
	c.Endpoint = cmp.Or(e.Endpoint, c.Endpoint)
	c.Location = cmp.Or(e.Location, c.Location)

	if e.Error != nil {
		s.Errors++
	}
	m := e.Message
	if m == nil {
		return
	}
	switch m.Type {
	case log.MessageTypeRequest:
		if e.Direction == log.DirectionIn && m.Operation != "" {
			s.Operations[m.Operation]++
		}
	case log.MessageTypeNotification:
		s.Notifications++
	case log.MessageTypeResponse:
		s.ResponseCodes[coap.Code(m.Code).Dotted()]++
	}
}

// Collect reads a whole capture into Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer reader.Close()

	s := newStats()
	for event, err := range reader.Events() {
		if err != nil {
			return nil, err
		}
		s.add(event)
	}
	return s, nil
}

// RunStats prints a capture summary to w.
func RunStats(path string, w io.Writer) error {
	s, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, s)
	return nil
}

// section prints "title:" followed by one "  key: n" line per non-zero count.
func section[K comparable](w io.Writer, title string, keys []K, name func(K) string, counts map[K]int) {
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		if n := counts[k]; n > 0 {
			fmt.Fprintf(w, "  %-18s %d\n", name(k)+":", n)
		}
	}
	fmt.Fprintln(w)
}

func identity(s string) string { return s }

func printStats(w io.Writer, s *Stats) {
	fmt.Fprintln(w, "=== LwM2M capture statistics ===")
	fmt.Fprintln(w)
	if s.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s (%s)\n\n",
			s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339), s.End.Sub(s.Start).Round(time.Second))
	}
	fmt.Fprintf(w, "Total Events: %d\n\n", s.TotalEvents)

	section(w, "Layer", []log.Layer{log.LayerTransport, log.LayerCoAP, log.LayerLwM2M}, log.Layer.String, s.EventsByLayer)
	section(w, "Category", []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError}, log.Category.String, s.EventsByCategory)
	section(w, "Direction", []log.Direction{log.DirectionIn, log.DirectionOut}, log.Direction.String, s.EventsByDirection)
	if len(s.Operations) > 0 {
		section(w, "Inbound operations", slices.Sorted(maps.Keys(s.Operations)), identity, s.Operations)
	}
	if len(s.ResponseCodes) > 0 {
		section(w, "Response codes", slices.Sorted(maps.Keys(s.ResponseCodes)), identity, s.ResponseCodes)
	}
	if s.Notifications > 0 {
		fmt.Fprintf(w, "Notifications: %d\n\n", s.Notifications)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(s.Connections))
	ids := slices.SortedFunc(maps.Keys(s.Connections), func(a, b string) int {
		return s.Connections[a].FirstSeen.Compare(s.Connections[b].FirstSeen)
	})
	for _, id := range ids {
		c := s.Connections[id]
		fmt.Fprintf(w, "  [%s] %d events over %s\n", shortenConnID(id), c.Events, c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond))
		if c.RemoteAddr != "" {
			fmt.Fprintf(w, "           Peer: %s\n", c.RemoteAddr)
		}
		if c.Endpoint != "" {
			fmt.Fprintf(w, "           Endpoint: %s at %s\n", c.Endpoint, c.Location)
		}
	}

	if s.Errors > 0 {
		fmt.Fprintf(w, "\nErrors: %d\n", s.Errors)
	}
}
