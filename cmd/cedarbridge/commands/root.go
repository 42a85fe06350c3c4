package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/cedarbridge/pkg/bridge"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/decisionlog"
	"github.com/openfroyo/cedarbridge/pkg/engine"
	"github.com/openfroyo/cedarbridge/pkg/foreign/objrt"
	"github.com/openfroyo/cedarbridge/pkg/hostlib"
	"github.com/openfroyo/cedarbridge/pkg/telemetry"
)

var (
	// Global flags
	configPath    string
	verbose       bool
	jsonOutput    bool
	metricsAddr   string
	traceExporter string
	otlpEndpoint  string
	otlpInsecure  bool
	decisionLogDB string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cedarbridge",
		Short: "Cedarbridge - Cedar authorization from the command line",
		Long: `Cedarbridge evaluates Cedar authorization requests against a policy store
using the same engine the host bindings embed.

Features:
  - Bootstrap configuration in YAML, JSON or CUE
  - Signed requests with access, id and userinfo tokens
  - Unsigned requests with explicit principals
  - Rego guards evaluated before Cedar policies
  - Decision logs to stdout, memory or a lock server`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cedarbridge.yaml", "bootstrap config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "none", "trace exporter (otlp, stdout, none)")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP collector endpoint")
	rootCmd.PersistentFlags().BoolVar(&otlpInsecure, "otlp-insecure", false, "disable TLS to the OTLP collector")
	rootCmd.PersistentFlags().StringVar(&decisionLogDB, "decision-log-db", "", "keep MEMORY decision log entries in this database file")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newAuthorizeCommand())
	rootCmd.AddCommand(newAuthorizeUnsignedCommand())

	return rootCmd
}

// loadConfig parses and validates the bootstrap config.
func loadConfig(ctx context.Context) (*config.BootstrapConfig, error) {
	cfg, err := config.NewParser().Load(ctx, configPath)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				fmt.Fprintf(os.Stderr, "  %s\n", e.String())
			}
		}
		return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	return cfg, nil
}

// newTelemetry builds the telemetry of one command run. Spans of the stdout
// exporter go to stderr so they never mix with command output.
func newTelemetry() (*telemetry.Telemetry, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.Logging.Level = "warn"
	if verbose {
		tcfg = telemetry.DevelopmentConfig()
	}
	tcfg.Tracing.Enabled = traceExporter != "none"
	tcfg.Tracing.Exporter = traceExporter
	tcfg.Tracing.Endpoint = otlpEndpoint
	tcfg.Tracing.Insecure = otlpInsecure
	tcfg.Tracing.Writer = os.Stderr
	tcfg.Metrics.Enabled = metricsAddr != ""
	if metricsAddr != "" {
		tcfg.Metrics.ListenAddress = metricsAddr
	}

	tel, err := telemetry.NewTelemetry(tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry: %w", err)
	}
	if err := tel.StartMetricsServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	return tel, nil
}

// host is an in-process caller runtime with the class library installed and
// bound to the bridge.
type host struct {
	cedarling *hostlib.Cedarling
	// engine is the instance the bridge created for cedarling.
	engine *engine.Cedarling
	bridge *bridge.Bridge
	tel    *telemetry.Telemetry
}

// newHost loads the bootstrap config and constructs a Cedarling object
// through the bridge, the way an embedding runtime does.
func newHost(ctx context.Context) (*host, *config.BootstrapConfig, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	tel, err := newTelemetry()
	if err != nil {
		return nil, nil, err
	}

	opts := []engine.Option{engine.WithTelemetry(tel)}
	if decisionLogDB != "" {
		opts = append(opts, engine.WithDecisionLogOptions(decisionlog.WithMemoryPath(decisionLogDB)))
	}

	h := &host{tel: tel}
	h.bridge = bridge.New(
		bridge.WithTelemetry(tel),
		bridge.WithEngineFactory(func(ctx context.Context, cfg *config.BootstrapConfig) (bridge.Engine, error) {
			c, err := engine.New(ctx, cfg, opts...)
			if err != nil {
				return nil, err
			}
			h.engine = c
			return c, nil
		}),
	)

	rt := objrt.New()
	if err := hostlib.Install(rt, h.bridge); err != nil {
		_ = tel.Shutdown(ctx)
		return nil, nil, fmt.Errorf("failed to install class library: %w", err)
	}
	h.cedarling, err = hostlib.New(rt, cfg)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, nil, fmt.Errorf("failed to create Cedarling: %w", err)
	}
	return h, cfg, nil
}

func (h *host) close() {
	defer func() {
		if err := h.tel.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()
	if err := h.cedarling.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Cedarling")
		return
	}
	log.Debug().Int("live_instances", h.bridge.LiveInstances()).Msg("Cedarling closed")
}

// readInput reads a request document from path, or stdin for "-".
func readInput(path string, v any) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open request: %w", err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
