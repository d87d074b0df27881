package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/crimson-sun/auditor/internal/config"
	"github.com/crimson-sun/auditor/internal/connector"
	"github.com/crimson-sun/auditor/internal/engine"
	"github.com/crimson-sun/auditor/internal/engine/classifier"
	"github.com/crimson-sun/auditor/internal/logging"
	"github.com/crimson-sun/auditor/internal/metrics"
	"github.com/crimson-sun/auditor/internal/output"
	"github.com/crimson-sun/auditor/internal/output/csvfile"
	"github.com/crimson-sun/auditor/internal/output/kafka"
	"github.com/crimson-sun/auditor/internal/output/multi"
	"github.com/crimson-sun/auditor/internal/output/postgres"
	"github.com/crimson-sun/auditor/internal/output/redis"
	"github.com/crimson-sun/auditor/internal/output/stdout"
	"github.com/crimson-sun/auditor/internal/output/webhook"
	"github.com/crimson-sun/auditor/internal/pipeline"

	// Register connector implementations.
	_ "github.com/crimson-sun/auditor/internal/connector/cfapi"
	_ "github.com/crimson-sun/auditor/internal/connector/cfcli"
	_ "github.com/crimson-sun/auditor/internal/connector/file"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println("auditor", config.Version)
		return
	}

	cfg := config.Load()
	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "auditor: invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	// Set up graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %v, shutting down...\n", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "auditor: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// run executes one pipeline pass. A NoEventsFound summary is a success.
func run(ctx context.Context, cfg config.Config) error {
	rules := classifier.DefaultRules()
	if cfg.Engine.RulesFile != "" {
		loaded, err := classifier.LoadRules(cfg.Engine.RulesFile)
		if err != nil {
			return err
		}
		rules = loaded
	}
	eng := engine.New(classifier.New(rules))

	ctor, err := connector.Get(cfg.Source.Provider)
	if err != nil {
		return err
	}

	out, err := buildOutput(ctx, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	p := pipeline.New(ctor(), eng, out,
		pipeline.WithLookback(cfg.Lookback()),
		pipeline.WithMetrics(m),
	)

	_, runErr := p.Run(ctx, cfg.Source.ConnectorConfig())
	closeErr := p.Close()

	if cfg.Metrics.File != "" {
		if err := m.WriteTextfile(cfg.Metrics.File); err != nil {
			slog.Warn("failed to write metrics textfile", "path", cfg.Metrics.File, "error", err)
		}
	}
	return errors.Join(runErr, closeErr)
}

// buildOutput opens every configured sink. When one fails to open, the ones
// already opened are closed.
func buildOutput(ctx context.Context, cfg config.Config) (output.Output, error) {
	var outs []output.Output
	closeAll := func() {
		for _, o := range outs {
			o.Close()
		}
	}

	for _, name := range cfg.Output.Sinks {
		o, err := openSink(ctx, name, cfg)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("output %s: %w", name, err)
		}
		outs = append(outs, o)
	}

	if len(outs) == 1 {
		return outs[0], nil
	}
	return multi.New(outs...), nil
}

func openSink(ctx context.Context, name string, cfg config.Config) (output.Output, error) {
	oc := cfg.Output
	switch name {
	case config.SinkCSV:
		return csvfile.New(oc.ExportDir, csvfile.WithExcelHint(oc.ExcelHint))
	case config.SinkStdout:
		return stdout.New(oc.Pretty), nil
	case config.SinkWebhook:
		var opts []webhook.Option
		if oc.WebhookTimeout > 0 {
			opts = append(opts, webhook.WithTimeout(oc.WebhookTimeout))
		}
		return webhook.New(oc.WebhookURL, opts...), nil
	case config.SinkPostgres:
		pg, err := postgres.Open(ctx, oc.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case config.SinkRedis:
		return redis.Dial(ctx, oc.RedisURL, redis.WithTTL(oc.RedisTTL))
	case config.SinkKafka:
		return kafka.Dial(oc.KafkaBrokers, oc.KafkaTopic)
	default:
		return nil, fmt.Errorf("unknown output %q", name)
	}
}
