// Command lwm2m-peer runs a simulated LwM2M server.
//
// The peer accepts Register, Update, De-register, Bootstrap-Request and
// Send from one client over UDP or DTLS, serves hosted resources such as
// a firmware image with Block2, and can drive the client from an
// interactive shell.
//
// Usage:
//
//	lwm2m-peer [flags]
//
// Flags:
//
//	-config string         Configuration file path (YAML)
//	-address string        Listen address (overrides config)
//	-port int              Listen port (overrides config)
//	-security string       Security mode: none, psk, x509 (overrides config)
//	-psk-identity string   PSK identity
//	-psk-key string        PSK key (hex)
//	-location string       Registration location (default "/rd/demo")
//	-unique-locations      Give every endpoint its own location
//	-firmware string       Firmware image served at the firmware path
//	-state-file string     Persist registrations in this file
//	-advertise             Advertise the server with DNS-SD
//	-protocol-log string   File path for protocol event logging (CBOR format)
//	-log-level string      Log level: debug, info, warn, error
//	-interactive           Start the interactive shell
//
// Examples:
//
//	# Plain CoAP on the default port with a shell
//	lwm2m-peer -interactive
//
//	# DTLS-PSK, serving a firmware image
//	lwm2m-peer -security psk -psk-identity dev1 -psk-key 000102030405 -firmware fw.bin
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lwm2m-harness/lwm2m-go/cmd/lwm2m-peer/interactive"
	"github.com/lwm2m-harness/lwm2m-go/pkg/config"
	"github.com/lwm2m-harness/lwm2m-go/pkg/discovery"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
	"github.com/lwm2m-harness/lwm2m-go/pkg/persistence"
	"github.com/lwm2m-harness/lwm2m-go/pkg/server"
)

// Flags holds command line overrides of the configuration file.
type Flags struct {
	ConfigFile      string
	Address         string
	Port            int
	Security        string
	PSKIdentity     string
	PSKKey          string
	Location        string
	UniqueLocations bool
	Firmware        string
	StateFile       string
	Advertise       bool
	ProtocolLog     string
	LogLevel        string
	Interactive     bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Address, "address", "", "Listen address (overrides config)")
	flag.IntVar(&flags.Port, "port", 0, "Listen port (overrides config)")
	flag.StringVar(&flags.Security, "security", "", "Security mode: none, psk, x509 (overrides config)")
	flag.StringVar(&flags.PSKIdentity, "psk-identity", "", "PSK identity")
	flag.StringVar(&flags.PSKKey, "psk-key", "", "PSK key (hex)")
	flag.StringVar(&flags.Location, "location", "", "Registration location (default \"/rd/demo\")")
	flag.BoolVar(&flags.UniqueLocations, "unique-locations", false, "Give every endpoint its own location")
	flag.StringVar(&flags.Firmware, "firmware", "", "Firmware image served at the firmware path")
	flag.StringVar(&flags.StateFile, "state-file", "", "Persist registrations in this file")
	flag.BoolVar(&flags.Advertise, "advertise", false, "Advertise the server with DNS-SD")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start the interactive shell")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags)
	if err != nil {
		stdlog.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	var plog log.Logger = log.NoopLogger{}
	if cfg.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			stdlog.Fatalf("Failed to create protocol logger: %v", err)
		}
		defer fileLogger.Close()
		plog = fileLogger
	}
	if cfg.SlogLevel() == slog.LevelDebug {
		plog = log.NewMultiLogger(plog, log.NewSlogAdapter(logger))
	}

	peer, err := cfg.OpenPeer(logger, plog)
	if err != nil {
		stdlog.Fatalf("Failed to open peer: %v", err)
	}
	defer peer.Close()

	srvCfg := server.DefaultConfig()
	srvCfg.Location = cfg.LocationPath()
	srvCfg.UniqueLocations = flags.UniqueLocations
	srvCfg.Params = cfg.Transmission
	srvCfg.BlockSize = cfg.BlockSize
	srvCfg.CacheSize = cfg.CacheSize
	srvCfg.Logger = logger
	srvCfg.ProtocolLogger = plog
	if cfg.Discovery.Role == discovery.RoleBootstrap {
		srvCfg.Role = log.RoleBootstrap
	}
	if cfg.StateFile != "" {
		srvCfg.Store = persistence.NewStore(cfg.StateFile)
	}

	srv, err := server.New(peer, srvCfg)
	if err != nil {
		stdlog.Fatalf("Failed to create server: %v", err)
	}
	if srvCfg.Store != nil {
		if err := srv.LoadState(); err != nil {
			logger.Warn("cannot restore state", "file", cfg.StateFile, "error", err)
		}
	}
	if cfg.FirmwareFile != "" {
		if err := srv.LoadResourceFile(cfg.FirmwarePath, cfg.FirmwareFile); err != nil {
			stdlog.Fatalf("Failed to load firmware: %v", err)
		}
	}

	if cfg.Discovery.Enabled {
		advCfg := discovery.DefaultAdvertiserConfig()
		advCfg.Interface = cfg.Discovery.Interface
		var adv discovery.Advertiser = discovery.NewMDNSAdvertiser(advCfg)
		if err := adv.Advertise(ctx, cfg.ServerInfo()); err != nil {
			logger.Warn("DNS-SD advertisement failed", "error", err)
		} else {
			defer adv.StopAll()
		}
	}

	stdlog.Printf("LwM2M peer listening on %s (%s)", peer.LocalAddr(), cfg.Security.Mode)

	go serve(ctx, srv, peer, logger)

	if flags.Interactive {
		shell, err := interactive.New(srv, cfg.Transmission)
		if err != nil {
			stdlog.Fatalf("Failed to start shell: %v", err)
		}
		shell.Run(ctx, cancel)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		stdlog.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}
	stdlog.Println("Shutting down...")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(f Flags) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(f.ConfigFile); err != nil {
			return nil, err
		}
	}
	if f.Address != "" {
		cfg.Listen.Address = f.Address
	}
	if f.Port != 0 {
		cfg.Listen.Port = f.Port
	}
	if f.Security != "" {
		cfg.Security.Mode = config.SecurityMode(f.Security)
	}
	if f.PSKIdentity != "" {
		cfg.Security.PSKIdentity = f.PSKIdentity
	}
	if f.PSKKey != "" {
		cfg.Security.PSKKey = f.PSKKey
	}
	if f.Location != "" {
		cfg.Location = f.Location
	}
	if f.Firmware != "" {
		cfg.FirmwareFile = f.Firmware
	}
	if f.StateFile != "" {
		cfg.StateFile = f.StateFile
	}
	if f.Advertise {
		cfg.Discovery.Enabled = true
	}
	if f.ProtocolLog != "" {
		cfg.ProtocolLog = f.ProtocolLog
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", f.ConfigFile, err)
	}
	return cfg, nil
}
