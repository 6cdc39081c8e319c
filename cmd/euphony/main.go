package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/euphony-chat/euphony/pkg/proto"
	"github.com/euphony-chat/euphony/pkg/room"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	baseURL     string
	nick        string
	password    string
	human       bool
	verbose     bool
	metricsAddr string
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "euphony",
		Short: "Command-line client for euphoria chat rooms",
		Long: `euphony talks to euphoria-compatible chat servers over websockets.

It can follow a room's activity, post messages, and export room logs
to disk or S3. Connections reconnect automatically and survive server
pings and partitions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.baseURL, "base-url", proto.DefaultBaseURL, "websocket base URL of the server")
	pf.StringVarP(&opts.nick, "nick", "n", "", "nick to assert after joining")
	pf.StringVarP(&opts.password, "password", "p", "", "passcode for private rooms")
	pf.BoolVar(&opts.human, "human", false, "list the session as a person rather than a bot")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(
		tailCmd(opts),
		sayCmd(opts),
		archiveCmd(opts),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// logger builds the process logger from the verbosity flag.
func (o *options) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// metrics starts the debug listener if requested and returns the
// registry rooms should report into, or nil.
func (o *options) metrics(logger *slog.Logger) prometheus.Registerer {
	if o.metricsAddr == "" {
		return nil
	}
	registry := prometheus.NewRegistry()

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	server := &http.Server{Addr: o.metricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listener started", "addr", o.metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", "error", err)
		}
	}()
	return registry
}

// roomConfig assembles a room configuration from the shared flags.
func (o *options) roomConfig(name string, logger *slog.Logger, registry prometheus.Registerer) room.Config {
	return room.Config{
		Name:            name,
		Password:        o.password,
		Nick:            o.nick,
		Human:           o.human,
		BaseURL:         o.baseURL,
		Logger:          logger,
		MetricsRegistry: registry,
	}
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
