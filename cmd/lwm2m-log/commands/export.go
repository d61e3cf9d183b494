package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

// csvColumn is one column of the CSV export.
type csvColumn struct {
	name  string
	value func(log.Event) string
}

var csvColumns = []csvColumn{
	{"timestamp", func(e log.Event) string { return e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z") }},
	{"connection_id", func(e log.Event) string { return e.ConnectionID }},
	{"direction", func(e log.Event) string { return e.Direction.String() }},
	{"layer", func(e log.Event) string { return e.Layer.String() }},
	{"category", func(e log.Event) string { return e.Category.String() }},
	{"remote", func(e log.Event) string { return e.RemoteAddr }},
	{"endpoint", func(e log.Event) string { return e.Endpoint }},
	{"type", eventKind},
	{"code", func(e log.Event) string {
		if e.Message == nil {
			return ""
		}
		return coap.Code(e.Message.Code).Dotted()
	}},
	{"message_id", func(e log.Event) string {
		switch {
		case e.Message != nil:
			return strconv.Itoa(int(e.Message.MessageID))
		case e.Control != nil:
			return strconv.Itoa(int(e.Control.MessageID))
		}
		return ""
	}},
	{"operation", func(e log.Event) string {
		if e.Message == nil {
			return ""
		}
		return e.Message.Operation
	}},
	{"path", func(e log.Event) string {
		if e.Message == nil {
			return ""
		}
		return e.Message.Path
	}},
}

func eventKind(e log.Event) string {
	switch {
	case e.Datagram != nil:
		return "datagram"
	case e.Message != nil:
		return e.Message.Type.String()
	case e.StateChange != nil:
		return "state"
	case e.Control != nil:
		return e.Control.Type.String()
	case e.Error != nil:
		return "error"
	}
	return "unknown"
}

// RunExport converts a capture to JSON lines or CSV. An empty output
// writes to stdout.
func RunExport(path, format, output string) error {
	var write func(*log.Reader, io.Writer) error
	switch format {
	case "jsonl":
		write = exportJSONL
	case "csv":
		write = exportCSV
	default:
		return fmt.Errorf("unknown format %q (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer reader.Close()

	if output == "" {
		return write(reader, os.Stdout)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	if err := write(reader, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	for event, err := range reader.Events() {
		if err != nil {
			return err
		}
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	row := make([]string, len(csvColumns))
	for i, c := range csvColumns {
		row[i] = c.name
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	for event, err := range reader.Events() {
		if err != nil {
			return err
		}
		for i, c := range csvColumns {
			row[i] = c.value(event)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
