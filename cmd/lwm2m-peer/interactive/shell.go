// Package interactive provides the interactive command-line interface
// for the LwM2M peer.
package interactive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/lwm2m"
	"github.com/lwm2m-harness/lwm2m-go/pkg/senml"
	"github.com/lwm2m-harness/lwm2m-go/pkg/server"
	"github.com/lwm2m-harness/lwm2m-go/pkg/tlv"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transmission"
)

// Shell drives the connected client from the terminal.
type Shell struct {
	srv     *server.Server
	params  transmission.Params
	timeout time.Duration
	rl      *readline.Instance
	out     io.Writer
}

// New creates a shell that sends requests through srv. Requests wait up
// to MAX_TRANSMIT_WAIT of params for a response.
func New(srv *server.Server, params transmission.Params) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lwm2m> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s := newShell(srv, params, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(srv *server.Server, params transmission.Params, out io.Writer) *Shell {
	return &Shell{
		srv:     srv,
		params:  params,
		timeout: params.MaxTransmitWait(),
		out:     out,
	}
}

// Stdout returns a writer that coordinates with the readline prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline prompt.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
		if s.execute(line) {
			cancel()
			return
		}
	}
}

// execute runs one command line and reports whether the shell should exit.
func (s *Shell) execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "read", "r":
		s.cmdRead(args)
	case "write", "w":
		s.cmdWrite(args)
	case "exec", "x":
		s.cmdExecute(args)
	case "observe", "o":
		s.cmdObserve(args)
	case "cancel":
		s.cmdCancel(args)
	case "discover", "d":
		s.cmdDiscover(args)
	case "attrs":
		s.cmdAttributes(args)
	case "delete":
		s.cmdDelete(args)
	case "notify":
		s.cmdNotify(args)
	case "notifications", "n":
		s.cmdNotifications()
	case "regs":
		s.cmdRegistrations()
	case "resources":
		s.cmdResources()
	case "params":
		fmt.Fprintf(s.out, "%s\n", s.params)
		fmt.Fprintf(s.out, "  EXCHANGE_LIFETIME: %s\n", s.params.ExchangeLifetime())
		fmt.Fprintf(s.out, "  MAX_TRANSMIT_WAIT: %s\n", s.params.MaxTransmitWait())
	case "fakeclose":
		s.report(s.srv.Peer().FakeClose())
	case "unclose":
		s.report(s.srv.Peer().FakeUnclose())
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
LwM2M Peer Commands:
  Client operations:
    read <path> [format]          - Read (format: tlv, senml+json, senml+cbor, text)
    write <path> <value> [format] - Write a value (default text)
    exec <path> [args]            - Execute a resource
    observe <path>                - Start observing
    cancel <path>                 - Cancel an observation
    discover <path>               - Discover
    attrs <path> <k=v>...         - Write-Attributes (pmin=10 gt=50.5 ...)
    delete <path>                 - Delete an object instance

  Hosted resources:
    resources                     - List hosted resources
    notify <path>                 - Notify observers of a hosted resource

  State:
    regs                          - List registrations
    notifications                 - Show received notifications
    params                        - Show transmission parameters

  Connection:
    fakeclose                     - Simulate a closed port
    unclose                       - Undo fakeclose

    help                          - Show this help
    quit                          - Exit`)
}

func (s *Shell) report(err error) {
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, "OK")
}

func (s *Shell) path(args []string, usage string) (lwm2m.Path, bool) {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "Usage: %s\n", usage)
		return lwm2m.Path{}, false
	}
	p, err := lwm2m.ParsePath(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return lwm2m.Path{}, false
	}
	return p, true
}

func (s *Shell) send(t *coap.Template) {
	resp, err := s.srv.Request(t, s.timeout)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	printResponse(s.out, resp)
}

func (s *Shell) cmdRead(args []string) {
	p, ok := s.path(args, "read <path> [format]")
	if !ok {
		return
	}
	var accept []coap.ContentFormat
	if len(args) > 1 {
		cf, err := coap.ParseContentFormat(args[1])
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		accept = append(accept, cf)
	}
	s.send(lwm2m.NewRead(p, accept...))
}

func (s *Shell) cmdWrite(args []string) {
	p, ok := s.path(args, "write <path> <value> [format]")
	if !ok {
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: write <path> <value> [format]")
		return
	}
	cf := coap.TextPlain
	payload := []byte(args[1])
	if len(args) > 2 {
		var err error
		if cf, err = coap.ParseContentFormat(args[2]); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		if cf != coap.TextPlain && cf != coap.SenMLJSON {
			// binary formats are given as hex
			if payload, err = hex.DecodeString(args[1]); err != nil {
				fmt.Fprintf(s.out, "Error: value must be hex for %s: %v\n", cf, err)
				return
			}
		}
	}
	s.send(lwm2m.NewWrite(p, cf, payload))
}

func (s *Shell) cmdExecute(args []string) {
	p, ok := s.path(args, "exec <path> [args]")
	if !ok {
		return
	}
	s.send(lwm2m.NewExecute(p, strings.Join(args[1:], " ")))
}

func (s *Shell) cmdObserve(args []string) {
	p, ok := s.path(args, "observe <path>")
	if !ok {
		return
	}
	resp, err := s.srv.Observe(p, s.timeout)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	printResponse(s.out, resp)
}

func (s *Shell) cmdCancel(args []string) {
	p, ok := s.path(args, "cancel <path>")
	if !ok {
		return
	}
	resp, err := s.srv.CancelObserve(p, s.timeout)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	printResponse(s.out, resp)
}

func (s *Shell) cmdDiscover(args []string) {
	p, ok := s.path(args, "discover <path>")
	if !ok {
		return
	}
	s.send(lwm2m.NewDiscover(p))
}

func (s *Shell) cmdAttributes(args []string) {
	p, ok := s.path(args, "attrs <path> <k=v>...")
	if !ok {
		return
	}
	attrs, err := lwm2m.ParseAttributes(args[1:])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	s.send(lwm2m.NewWriteAttributes(p, attrs))
}

func (s *Shell) cmdDelete(args []string) {
	p, ok := s.path(args, "delete <path>")
	if !ok {
		return
	}
	s.send(lwm2m.NewDelete(p))
}

func (s *Shell) cmdNotify(args []string) {
	p, ok := s.path(args, "notify <path>")
	if !ok {
		return
	}
	n, err := s.srv.Notify(p)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Notified %d observer(s)\n", n)
}

func (s *Shell) cmdNotifications() {
	notes := s.srv.Notifications()
	if len(notes) == 0 {
		fmt.Fprintln(s.out, "No notifications")
		return
	}
	for _, n := range notes {
		fmt.Fprintf(s.out, "%s %s seq=%d\n", n.ReceivedAt.Format("15:04:05.000"), n.Path, n.Seq)
		printBody(s.out, n.Packet)
	}
}

func (s *Shell) cmdRegistrations() {
	regs := s.srv.Registrations()
	if len(regs) == 0 {
		fmt.Fprintln(s.out, "No registrations")
		return
	}
	for _, r := range regs {
		fmt.Fprintf(s.out, "%s at %s (lifetime %s, binding %q, version %s, peer %s)\n",
			r.Endpoint, r.Location, r.Lifetime, r.Binding, r.Version, r.Peer)
		for _, l := range r.Links {
			fmt.Fprintf(s.out, "  %s\n", l.Target)
		}
	}
}

func (s *Shell) cmdResources() {
	paths := s.srv.Resources()
	if len(paths) == 0 {
		fmt.Fprintln(s.out, "No hosted resources")
		return
	}
	sort.Strings(paths)
	for _, p := range paths {
		res, _ := s.srv.Resource(p)
		fmt.Fprintf(s.out, "%s (%d bytes, %s)\n", p, len(res.Body), res.Format)
	}
}

func printResponse(w io.Writer, resp *coap.Packet) {
	fmt.Fprintf(w, "%s\n", resp.Code)
	printBody(w, resp)
}

// printBody decodes the payload by its Content-Format where possible.
func printBody(w io.Writer, p *coap.Packet) {
	if len(p.Payload) == 0 {
		return
	}
	cf, _ := p.Options.ContentFormat()
	switch cf {
	case coap.LwM2MTLV:
		records, err := tlv.Decode(p.Payload)
		if err != nil {
			break
		}
		for _, r := range records {
			fmt.Fprintf(w, "  %s\n", r)
		}
		return
	case coap.SenMLJSON, coap.SenMLCBOR:
		pack, err := senml.Decode(cf, p.Payload)
		if err != nil {
			break
		}
		names := pack.Names()
		for i, r := range pack {
			v, _ := r.AnyValue()
			fmt.Fprintf(w, "  %s = %v\n", names[i], v)
		}
		return
	case coap.TextPlain, coap.LinkFormat:
		fmt.Fprintf(w, "  %s\n", p.Payload)
		return
	}
	fmt.Fprintf(w, "  %s\n", hex.EncodeToString(p.Payload))
}
