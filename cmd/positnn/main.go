// Package main provides the positnn CLI: it trains a small classifier with
// posit arithmetic at a chosen precision and round-trips it through a model
// file.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const version = "v0.1.0"

var (
	precision   = flag.String("precision", "mixed", "Precision: p8, p16, p32 or mixed (opt posit<16,1>, fwd/bwd posit<8,0>)")
	epochs      = flag.Int("epochs", 10, "Number of training epochs")
	batchSize   = flag.Int("batch", 32, "Mini-batch size")
	workers     = flag.Int("workers", 1, "Data-parallel replicas per batch")
	kernelProcs = flag.Int("procs", 1, "Goroutines per kernel loop")
	lr          = flag.Float64("lr", 0.05, "Learning rate")
	momentum    = flag.Float64("momentum", 0.9, "SGD momentum")
	hidden      = flag.Int("hidden", 16, "Hidden layer width")
	samples     = flag.Int("samples", 512, "Synthetic samples per class")
	seed        = flag.Int64("seed", 1, "Random seed")
	savePath    = flag.String("save", "", "Write the trained model to this .pnn file and reload it")
	metricsAddr = flag.String("metrics", "", "Address to serve Prometheus metrics on (e.g. :9100)")
	enableOTel  = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	verbose     = flag.Bool("v", false, "Log every training step")
)

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("positnn %s\n", version)
		return
	}

	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg := cliConfig{
		Precision:   *precision,
		Trace:       *enableOTel,
		MetricsAddr: *metricsAddr,
		Options: runOptions{
			Epochs:    *epochs,
			BatchSize: *batchSize,
			Workers:   *workers,
			Procs:     *kernelProcs,
			LR:        *lr,
			Momentum:  *momentum,
			Hidden:    *hidden,
			Samples:   *samples,
			Seed:      *seed,
			SavePath:  *savePath,
		},
	}
	if err := execute(context.Background(), cfg); err != nil {
		log.Error().Err(err).Msg("positnn failed")
		os.Exit(1)
	}
}

// cliConfig is the parsed command line.
type cliConfig struct {
	Precision   string
	Trace       bool
	MetricsAddr string
	Options     runOptions
}

// newTracer installs the global tracer provider and returns its shutdown.
var newTracer = initTracer

// execute runs one training session. Deferred cleanup, including the trace
// exporter flush, completes before it returns.
func execute(ctx context.Context, cfg cliConfig) error {
	if cfg.Trace {
		shutdown, err := newTracer()
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Tracer shutdown failed")
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	if err := cfg.Options.validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if err := dispatch(ctx, cfg.Precision, cfg.Options); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("positnn"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
