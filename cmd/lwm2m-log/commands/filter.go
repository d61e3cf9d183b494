package commands

import (
	"fmt"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

// FilterOptions holds the flags of the filter command. Times are RFC 3339.
type FilterOptions struct {
	Output    string
	ConnID    string
	Endpoint  string
	Operation string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// build turns the flag strings into a capture filter.
func (o FilterOptions) build() (log.Filter, error) {
	f := log.Filter{ConnectionID: o.ConnID, Endpoint: o.Endpoint, Operation: o.Operation}

	var err error
	if f.TimeStart, err = parseTimeFlag("time-start", o.TimeStart); err != nil {
		return f, err
	}
	if f.TimeEnd, err = parseTimeFlag("time-end", o.TimeEnd); err != nil {
		return f, err
	}
	if o.Layer != "" {
		l, err := ParseLayerFlag(o.Layer)
		if err != nil {
			return f, err
		}
		f.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirectionFlag(o.Direction)
		if err != nil {
			return f, err
		}
		f.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategoryFlag(o.Category)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	return f, nil
}

func parseTimeFlag(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("-%s: %w", name, err)
	}
	return &t, nil
}

// RunFilter copies the events of path that pass opts into a new capture
// at opts.Output and returns how many were copied.
func RunFilter(path string, opts FilterOptions) (int, error) {
	filter, err := opts.build()
	if err != nil {
		return 0, err
	}
	if filter.IsZero() {
		return 0, fmt.Errorf("no filter criteria given")
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("open capture: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", opts.Output, err)
	}

	n := 0
	for event, err := range reader.Events() {
		if err != nil {
			out.Close()
			return n, err
		}
		out.Log(event)
		n++
	}
	if err := out.Close(); err != nil {
		return n, err
	}
	if d := out.Dropped(); d > 0 {
		return n, fmt.Errorf("%d events could not be written", d)
	}
	return n, nil
}

// View returns the subset of the options the view command understands.
func (o FilterOptions) View() (ViewFilter, error) {
	f, err := o.build()
	if err != nil {
		return ViewFilter{}, err
	}
	return ViewFilter{
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
		Endpoint:  f.Endpoint,
		Operation: f.Operation,
	}, nil
}
