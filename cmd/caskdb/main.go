// caskdb is a single-segment, append-only key/value store speaking a
// RESP2-style binary protocol with a plaintext fallback.
//
// Usage:
//
//	caskdb [flags]
//
// Flags:
//
//	-config string    Path to a YAML config file (default "config.yml")
//	-addr string      Override listen address (default ":2288")
//	-data string      Override data directory (default "data")
//	-loglevel string  Override log level: debug, info, warn, error
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/caskdb/caskdb/internal/config"
	"github.com/caskdb/caskdb/internal/engine"
	"github.com/caskdb/caskdb/internal/logging"
	"github.com/caskdb/caskdb/internal/server"
	"github.com/caskdb/caskdb/internal/version"
)

func main() {
	configPath := flag.String("config", envOrDefault("CASKDB_CONFIG", "config.yml"), "Path to YAML config file")
	addrOverride := flag.String("addr", "", "Override listen address (e.g. :2288)")
	dataOverride := flag.String("data", "", "Override data directory")
	logLevelOverride := flag.String("loglevel", "", "Override log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("caskdb v%s (built %s)\n", version.Version, version.BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "caskdb: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addrOverride != "" {
		if port, perr := strconv.Atoi(trimColon(*addrOverride)); perr == nil {
			cfg.ListenPort = port
		}
	}
	if *dataOverride != "" {
		cfg.DataDir = *dataOverride
	}
	if *logLevelOverride != "" {
		cfg.LogLevel = *logLevelOverride
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "caskdb: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Infow("caskdb starting", "data_dir", cfg.DataDir, "port", cfg.ListenPort, "sync_writes", cfg.SyncWrites)

	eng, err := engine.Open(cfg.DataDir, engine.Options{
		SyncOnPut: cfg.SyncWrites,
		Logger:    log,
	})
	if err != nil {
		log.Fatalw("failed to open engine", "error", err)
	}
	defer eng.Close()

	srv := server.New(
		fmt.Sprintf(":%d", cfg.ListenPort),
		eng,
		server.Config{MaxClients: cfg.MaxClients},
		log,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infow("received signal, shutting down", "signal", sig)
		srv.Close()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalw("server error", "error", err)
	}

	log.Info("caskdb shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// trimColon strips a leading ":" from an address flag so it can be parsed
// as a bare port number (caskdb only ever binds all interfaces).
func trimColon(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return addr[1:]
	}
	return addr
}
