// Command lwm2m-test runs LwM2M conformance scenarios against a client.
//
// The command plays the LwM2M server: it binds the configured UDP or DTLS
// port, waits for the client under test and drives it through the steps
// of every matching scenario.
//
// Usage:
//
//	lwm2m-test [flags] [scenario-pattern]
//
// Flags:
//
//	-config string        Peer configuration file (YAML)
//	-address string       Listen address (overrides config)
//	-port int             Listen port (overrides config)
//	-scenarios string     Path to scenario directory (default "./testdata/scenarios")
//	-files string         Comma-separated scenario file globs
//	-tags string          Only run scenarios with one of these tags
//	-exclude-tags string  Skip scenarios with any of these tags
//	-timeout duration     Scenario timeout (default 30s)
//	-fail-fast            Stop after the first failing scenario
//	-verbose              Enable verbose output
//	-json                 Output results as JSON
//	-junit                Output results as JUnit XML
//	-protocol-log string  File path for protocol event logging (CBOR format)
//
// Examples:
//
//	# Run every scenario on the default port
//	lwm2m-test
//
//	# Run registration scenarios over DTLS with verbose output
//	lwm2m-test -config dtls.yaml -verbose "TC-REG-*"
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"log/slog"
	"os"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/internal/harness/runner"
	"github.com/lwm2m-harness/lwm2m-go/pkg/config"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

var (
	configFile  = flag.String("config", "", "Peer configuration file (YAML)")
	address     = flag.String("address", "", "Listen address (overrides config)")
	port        = flag.Int("port", 0, "Listen port (overrides config)")
	scenarios   = flag.String("scenarios", "./testdata/scenarios", "Path to scenario directory")
	files       = flag.String("files", "", "Comma-separated scenario file globs (e.g. \"register-*,observe-*\")")
	tags        = flag.String("tags", "", "Only run scenarios with one of these tags")
	excludeTags = flag.String("exclude-tags", "", "Skip scenarios with any of these tags")
	timeout     = flag.Duration("timeout", 30*time.Second, "Scenario timeout")
	failFast    = flag.Bool("fail-fast", false, "Stop after the first failing scenario")
	verbose     = flag.Bool("verbose", false, "Enable verbose output")
	jsonOut     = flag.Bool("json", false, "Output results as JSON")
	junitOut    = flag.Bool("junit", false, "Output results as JUnit XML")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
)

func main() {
	flag.Parse()

	pattern := ""
	if flag.NArg() > 0 {
		pattern = flag.Arg(0)
	}

	peerCfg, err := loadPeerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	outputFormat := "text"
	if *jsonOut {
		outputFormat = "json"
	} else if *junitOut {
		outputFormat = "junit"
	}

	level := peerCfg.SlogLevel()
	if *verbose && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if outputFormat == "text" {
		stdlog.SetFlags(stdlog.Ltime)
		printBanner()
		stdlog.Printf("Listening: %s (%s)", peerCfg.ListenAddress(), peerCfg.Security.Mode)
		stdlog.Printf("Scenarios: %s", *scenarios)
		if pattern != "" {
			stdlog.Printf("Pattern: %s", pattern)
		}
		stdlog.Println()
	}

	var protocolLogger *log.FileLogger
	if *protocolLog != "" {
		protocolLogger, err = log.NewFileLogger(*protocolLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create protocol logger: %v\n", err)
			os.Exit(1)
		}
		defer protocolLogger.Close()
	}

	cfg := &runner.Config{
		Peer:               peerCfg,
		ScenarioDir:        *scenarios,
		Files:              *files,
		Pattern:            pattern,
		Tags:               *tags,
		ExcludeTags:        *excludeTags,
		Timeout:            *timeout,
		StopOnFirstFailure: *failFast,
		Verbose:            *verbose,
		Output:             os.Stdout,
		OutputFormat:       outputFormat,
		Logger:             logger,
	}
	// Only set logger when non-nil to avoid typed-nil interface issue.
	if protocolLogger != nil {
		cfg.ProtocolLogger = protocolLogger
	}

	r, err := runner.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	result, err := r.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if result.FailCount > 0 {
		os.Exit(1)
	}
}

// loadPeerConfig reads the configuration file and applies flag
// overrides.
func loadPeerConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	if *address != "" {
		cfg.Listen.Address = *address
	}
	if *port != 0 {
		cfg.Listen.Port = *port
	}
	return cfg, cfg.Validate()
}

func printBanner() {
	fmt.Print(`
LwM2M Client Conformance Runner
===============================
`)
}
