package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/pkg/cli"
	"github.com/nitely/v8-cffi/pkg/metrics"
)

var (
	// Global flags
	cfgFile     string
	profileName string
	libraryName string
	metricsAddr string
	verbose     bool

	// Global configuration (loaded at init time)
	globalConfig *cli.Config

	collector     *metrics.Collector
	metricsServer *http.Server
)

var rootCmd = &cobra.Command{
	Use:   "v8cffi",
	Short: "Run JavaScript through the v8cffi engine",
	Long: `v8cffi - run JavaScript through an embedded engine.

Scripts run inside a scope owned by a machine owned by the process-wide
environment. The engine library is selected per profile: "embedded" runs
in-process, "v8cffi" links libv8cffi when built with -tags v8cffi.

Configuration is stored in ~/.v8cffi/config.yaml.

Examples:
  # Run files, printing each completion value
  v8cffi run a.js b.js

  # Load helpers first, filter JSON output with jq
  v8cffi run --load lib.js -e 'JSON.stringify(info())' --jq '.name'

  # Run a batch file on 8 workers
  v8cffi batch jobs.yaml --workers 8

  # Use an S3 profile for sources and startup blobs
  v8cffi config set-profile prod --store s3 --bucket scripts
  v8cffi -p prod run scripts/main.js`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		collector = metrics.NewCollector("")
		return startMetrics()
	},
}

// Execute runs the root command and releases the engine before returning.
// An interrupt cancels the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, shutdown())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.v8cffi/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "profile name to use")
	rootCmd.PersistentFlags().StringVar(&libraryName, "library", "", "native library (overrides the profile)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// configLoadErr stores the error from LoadConfig for deferred reporting.
var configLoadErr error

func initConfig() {
	cfg, err := cli.LoadConfig(cfgFile)
	if err != nil {
		configLoadErr = err
		globalConfig = nil
		return
	}
	configLoadErr = nil
	globalConfig = cfg
}

// getConfig returns the loaded configuration.
func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		return nil, errors.New("configuration not initialized")
	}
	return globalConfig, nil
}

// getProfile returns the validated profile selected by --profile.
func getProfile() (*cli.Profile, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	p, err := cfg.ResolveProfile(profileName)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func startMetrics() error {
	if metricsAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

// shutdown tears the process-wide scope down if it was set up and stops
// the metrics server.
func shutdown() error {
	var errs []error
	if globalUp {
		globalUp = false
		errs = append(errs, tearDownGlobal())
	}
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errs = append(errs, metricsServer.Shutdown(ctx))
		metricsServer = nil
	}
	return errors.Join(errs...)
}

// isVerbose returns whether verbose mode is enabled.
func isVerbose() bool {
	return verbose
}
