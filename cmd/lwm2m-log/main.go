// Command lwm2m-log inspects .clog protocol captures written by lwm2m-peer
// and lwm2m-test when run with -protocol-log.
//
// Usage:
//
//	lwm2m-log <command> [flags] <file.clog>
//
// Examples:
//
//	lwm2m-log view -layer lwm2m peer.clog
//	lwm2m-log view -endpoint node-1 -operation Register peer.clog
//	lwm2m-log export -format csv -o peer.csv peer.clog
//	lwm2m-log filter -conn-id abc12345-... -o one.clog peer.clog
//	lwm2m-log stats peer.clog
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lwm2m-harness/lwm2m-go/cmd/lwm2m-log/commands"
)

type subcommand struct {
	name    string
	summary string
	run     func(fs *flag.FlagSet, args []string) error
}

var subcommands = []subcommand{
	{"view", "print events in human-readable form", runView},
	{"export", "convert a capture to JSON lines or CSV", runExport},
	{"filter", "copy matching events into a new capture", runFilter},
	{"stats", "summarize a capture", runStats},
}

var errUsage = errors.New("usage")

func usage() {
	var sb strings.Builder
	sb.WriteString("lwm2m-log - LwM2M protocol capture analyzer\n\nUsage:\n  lwm2m-log <command> [flags] <file.clog>\n\nCommands:\n")
	for _, c := range subcommands {
		fmt.Fprintf(&sb, "  %-8s %s\n", c.name, c.summary)
	}
	sb.WriteString("\nRun \"lwm2m-log <command> -help\" for the flags of a command.\n")
	fmt.Fprint(os.Stderr, sb.String())
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "-help" || name == "--help" {
		usage()
		return
	}

	for _, c := range subcommands {
		if c.name != name {
			continue
		}
		fs := flag.NewFlagSet(c.name, flag.ExitOnError)
		fs.Usage = func() {
			fmt.Fprintf(os.Stderr, "lwm2m-log %s - %s\n\nUsage:\n  lwm2m-log %s [flags] <file.clog>\n\nFlags:\n", c.name, c.summary, c.name)
			fs.PrintDefaults()
		}
		err := c.run(fs, os.Args[2:])
		if errors.Is(err, errUsage) {
			fs.Usage()
			os.Exit(2)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "lwm2m-log %s: %v\n", c.name, err)
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

// capturePath parses the flags and returns the single positional argument.
func capturePath(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "exactly one capture file is required")
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func selectionFlags(fs *flag.FlagSet, o *commands.FilterOptions) {
	fs.StringVar(&o.Layer, "layer", "", "layer: transport, coap, lwm2m")
	fs.StringVar(&o.Direction, "direction", "", "direction: in, out")
	fs.StringVar(&o.Category, "category", "", "category: message, control, state, error")
	fs.StringVar(&o.Endpoint, "endpoint", "", "client endpoint name")
	fs.StringVar(&o.Operation, "operation", "", "LwM2M operation (Register, Read, ...)")
}

func runView(fs *flag.FlagSet, args []string) error {
	var opts commands.FilterOptions
	selectionFlags(fs, &opts)
	path, err := capturePath(fs, args)
	if err != nil {
		return err
	}
	filter, err := opts.View()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(fs *flag.FlagSet, args []string) error {
	format := fs.String("format", "jsonl", "output format: jsonl, csv")
	output := fs.String("o", "", "output file (default stdout)")
	path, err := capturePath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runFilter(fs *flag.FlagSet, args []string) error {
	var opts commands.FilterOptions
	selectionFlags(fs, &opts)
	fs.StringVar(&opts.Output, "o", "", "output capture (required)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "connection ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "first timestamp, RFC 3339")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "end timestamp (exclusive), RFC 3339")
	path, err := capturePath(fs, args)
	if err != nil {
		return err
	}
	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "-o is required")
		return errUsage
	}
	n, err := commands.RunFilter(path, opts)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d events to %s\n", n, opts.Output)
	return nil
}

func runStats(fs *flag.FlagSet, args []string) error {
	path, err := capturePath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
