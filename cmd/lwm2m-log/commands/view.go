// Package commands implements the lwm2m-log subcommands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

// ViewFilter narrows the view output.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	Endpoint  string
	Operation string
}

// RunView prints every matching event of a capture to out.
func RunView(path string, filter ViewFilter, out io.Writer) error {
	reader, err := log.NewFilteredReader(path, log.Filter{
		Layer:     filter.Layer,
		Direction: filter.Direction,
		Category:  filter.Category,
		Endpoint:  filter.Endpoint,
		Operation: filter.Operation,
	})
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer reader.Close()

	for event, err := range reader.Events() {
		if err != nil {
			return err
		}
		formatEvent(out, event)
	}
	return nil
}

// formatEvent writes a header line, indented details and a blank line.
func formatEvent(w io.Writer, e log.Event) {
	layer := e.Layer.String()
	if e.Category == log.CategoryControl {
		layer = "CTRL"
	}
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s",
		e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		shortenConnID(e.ConnectionID), e.Direction, layer, viewLabel(e))
	if e.RemoteAddr != "" {
		fmt.Fprintf(w, " peer=%s", e.RemoteAddr)
	}
	if e.Endpoint != "" {
		fmt.Fprintf(w, " ep=%s", e.Endpoint)
	}
	fmt.Fprintln(w)

	d := detailWriter{w}
	switch {
	case e.Datagram != nil:
		d.line("Size: %d bytes", e.Datagram.Size)
		if len(e.Datagram.Data) > 0 {
			suffix := ""
			if e.Datagram.Truncated {
				suffix = " (truncated)"
			}
			d.line("Data: %s%s", hex.EncodeToString(e.Datagram.Data), suffix)
		}
	case e.Message != nil:
		m := e.Message
		d.line("%s %s MessageID: %d Token: %x", coap.Type(m.CoAPType), coap.Code(m.Code), m.MessageID, m.Token)
		d.opt("Operation", m.Operation)
		d.opt("Path", m.Path)
		if m.ContentFormat != nil {
			d.line("Content-Format: %s", coap.ContentFormat(*m.ContentFormat))
		}
		if m.Observe != nil {
			d.line("Observe: %d", *m.Observe)
		}
		if m.Block != "" {
			d.line("Block%s", m.Block)
		}
		if m.PayloadSize > 0 {
			d.line("Payload: %d bytes", m.PayloadSize)
		}
		if m.ProcessingTime != nil {
			d.line("Duration: %s", formatDuration(*m.ProcessingTime))
		}
	case e.StateChange != nil:
		sc := e.StateChange
		d.line("Entity: %s", sc.Entity)
		d.line("%s -> %s", sc.OldState, sc.NewState)
		d.opt("Reason", sc.Reason)
	case e.Control != nil:
		d.line("MessageID: %d", e.Control.MessageID)
	case e.Error != nil:
		d.line("Layer: %s", e.Error.Layer)
		d.line("Message: %s", e.Error.Message)
		if e.Error.Code != nil {
			d.line("Code: %s", coap.Code(*e.Error.Code))
		}
		d.opt("Context", e.Error.Context)
	}
	fmt.Fprintln(w)
}

type detailWriter struct{ w io.Writer }

func (d detailWriter) line(format string, args ...any) {
	fmt.Fprintf(d.w, "  "+format+"\n", args...)
}

func (d detailWriter) opt(label, value string) {
	if value != "" {
		d.line("%s: %s", label, value)
	}
}

func viewLabel(e log.Event) string {
	switch {
	case e.Datagram != nil:
		return "Datagram"
	case e.StateChange != nil:
		return "State"
	case e.Error != nil:
		return "Error"
	}
	return eventKind(e)
}

func shortenConnID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1e3)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// parseChoice maps a case-insensitive flag value onto one of choices.
func parseChoice[T any](flag, value string, choices map[string]T) (T, error) {
	if v, ok := choices[strings.ToLower(value)]; ok {
		return v, nil
	}
	var zero T
	names := make([]string, 0, len(choices))
	for k := range choices {
		names = append(names, k)
	}
	slices.Sort(names)
	return zero, fmt.Errorf("invalid %s %q (one of %s)", flag, value, strings.Join(names, ", "))
}

// ParseLayerFlag parses transport, coap or lwm2m.
func ParseLayerFlag(s string) (log.Layer, error) {
	return parseChoice("layer", s, map[string]log.Layer{
		"transport": log.LayerTransport,
		"coap":      log.LayerCoAP,
		"lwm2m":     log.LayerLwM2M,
	})
}

// ParseDirectionFlag parses in or out.
func ParseDirectionFlag(s string) (log.Direction, error) {
	return parseChoice("direction", s, map[string]log.Direction{
		"in":  log.DirectionIn,
		"out": log.DirectionOut,
	})
}

// ParseCategoryFlag parses message, control, state or error.
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseChoice("category", s, map[string]log.Category{
		"message": log.CategoryMessage,
		"control": log.CategoryControl,
		"state":   log.CategoryState,
		"error":   log.CategoryError,
	})
}
