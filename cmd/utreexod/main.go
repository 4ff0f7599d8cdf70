// Command utreexod drives a live UTXO set accumulator from a line-oriented
// command stream on stdin.
//
// Usage:
//
//	utreexod [flags]
//
// Flags:
//
//	--backend      Forest implementation: forest, hashforest (default: forest)
//	--verbosity    Log level 0-5 (default: 3)
//	--metrics      Enable Prometheus metrics endpoint (default: false)
//	--metrics.port Prometheus HTTP port (default: 9100)
//	--version      Print version and exit
//
// Commands (one per line on stdin):
//
//	add <utxo>          add a leaf identified by the given opaque string
//	remove <utxo>        remove a previously added leaf
//	batchdelete <u1> ... remove every named leaf in one pass (forest backend only)
//	count                print the number of leaves currently tracked
//	dump                 print the hex root of every occupied height
package main

import (
	"bufio"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-utreexo/utreexo/forest"
	"github.com/go-utreexo/utreexo/hashforest"
	ulog "github.com/go-utreexo/utreexo/log"
	"github.com/go-utreexo/utreexo/metrics"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

// run is the actual entry point, returning an exit code. It accepts CLI
// arguments and I/O streams explicitly so it can be tested in isolation.
func run(args []string, stdin *os.File, stdout *os.File) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("utreexod %s starting", version)
	log.Printf("  backend:     %s", cfg.Backend)
	log.Printf("  verbosity:   %d (%s)", cfg.Verbosity, verbosityToLogLevel(cfg.Verbosity))
	log.Printf("  metrics:     %v", cfg.Metrics)

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	// Verbosity 0 sets a threshold above every level the logger emits.
	levels := [...]slog.Level{slog.LevelError + 4, slog.LevelError, slog.LevelWarn, slog.LevelInfo, slog.LevelDebug, slog.LevelDebug}
	ulog.SetDefault(ulog.New(levels[cfg.Verbosity]))

	d, err := newDriver(cfg.Backend)
	if err != nil {
		log.Printf("Failed to create driver: %v", err)
		return 1
	}

	var server *http.Server
	if cfg.Metrics {
		exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler())
		server = &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server error: %v", err)
			}
		}()
		log.Printf("  metrics served on :%d/metrics", cfg.MetricsPort)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runCommandLoop(d, stdin, stdout)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down", sig)
	}

	if server != nil {
		_ = server.Close()
	}
	log.Println("shutdown complete")
	return 0
}

// runCommandLoop reads one command per line from in and writes results to
// out until EOF.
func runCommandLoop(d driver, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if err := d.dispatch(fields, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// driver abstracts over the forest and hashforest backends so the command
// loop can dispatch identically regardless of which is selected.
type driver interface {
	dispatch(fields []string, out *os.File) error
}

func newDriver(backend string) (driver, error) {
	switch backend {
	case "forest":
		return &forestDriver{f: forest.New(ulog.Default())}, nil
	case "hashforest":
		return &hashforestDriver{f: hashforest.New(ulog.Default())}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// parseFlags parses CLI arguments into a Config. Returns the config, whether
// the caller should exit immediately, and the exit code.
func parseFlags(args []string) (Config, bool, int) {
	cfg := DefaultConfig()
	fs := newFlagSet(&cfg)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("utreexod %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the given
// Config.
func newFlagSet(cfg *Config) *flagSet {
	fs := newCustomFlagSet("utreexod")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "forest implementation: forest, hashforest")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0=silent, 5=trace)")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "enable the Prometheus metrics endpoint")
	fs.Uint64Var(&cfg.MetricsPort, "metrics.port", cfg.MetricsPort, "Prometheus metrics HTTP port")
	return fs
}
