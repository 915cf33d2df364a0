package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"signalflow/config"
	"signalflow/internal/indicator"
	"signalflow/internal/metrics"
	"signalflow/logger"
	"signalflow/processor"
	"signalflow/reader"
	"signalflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	universePath := flag.String("universe", "", "Path to universe file (overrides scan.universe_file)")
	startDate := flag.String("start", "", "Scan start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "Scan end date (YYYY-MM-DD), defaults to today")
	outDir := flag.String("out", "", "Output directory (overrides scan.output_dir)")
	force := flag.Bool("force", false, "Recompute even when metrics for the end date already exist")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.Signalflow.Name,
		"version":     cfg.Signalflow.Version,
		"environment": env,
	}).Info("starting signalflow")

	if config.IsProductionLike(env) && !cfg.Storage.SQLite.Enabled {
		log.Warn("metric persistence disabled in a production-like environment")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Metrics.ScanProgress {
		metrics.Init()
	}

	if *outDir != "" {
		cfg.Scan.OutputDir = *outDir
	}
	uPath := cfg.Scan.UniverseFile
	if *universePath != "" {
		uPath = *universePath
	}
	if uPath == "" {
		log.Error("no universe file configured; pass -universe or set scan.universe_file")
		os.Exit(1)
	}

	universe, err := config.LoadUniverse(uPath)
	if err != nil {
		log.WithError(err).Error("failed to load universe")
		os.Exit(1)
	}

	end := *endDate
	if end == "" {
		end = time.Now().UTC().Format("2006-01-02")
	}
	start := *startDate
	if start == "" {
		// Default to a year of history so the longest lookbacks have
		// enough bars.
		e, err := time.Parse("2006-01-02", end)
		if err != nil {
			log.WithError(err).Error("invalid end date")
			os.Exit(1)
		}
		start = e.AddDate(-1, 0, 0).Format("2006-01-02")
	}

	var store *writer.MetricStore
	if cfg.Storage.SQLite.Enabled {
		store, err = writer.OpenMetricStore(cfg.Storage.SQLite.Path)
		if err != nil {
			log.WithError(err).Error("failed to open metric store")
			os.Exit(1)
		}
		defer store.Close()

		if cfg.Storage.SQLite.SkipExisting && !*force {
			has, err := store.Has(end, cfg.Scan.Interval)
			if err != nil {
				log.WithError(err).Error("failed to query metric store")
				os.Exit(1)
			}
			if has {
				log.WithFields(logger.Fields{"end": end, "interval": cfg.Scan.Interval}).
					Info("metrics already stored for end date; skipping run (use -force to recompute)")
				return
			}
		}
	}

	// SIGINT/SIGTERM cancel the run; remaining tickers surface as
	// run_cancelled issues in the payload.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received, cancelling scan")
		cancel()
	}()

	source := reader.NewVendorReader(cfg)
	runner := processor.NewRunner(cfg, source, indicator.NewRegistry())

	payload, err := runner.Run(ctx, universe, start, end)
	if err != nil {
		log.WithError(err).Error("scan run failed")
		os.Exit(1)
	}

	payloadWriter := writer.NewPayloadWriter(cfg.Scan.OutputDir)
	artifactPath, err := payloadWriter.Write(payload)
	if err != nil {
		log.WithError(err).Error("failed to write run payload")
		os.Exit(1)
	}

	if store != nil {
		if err := store.UpsertRows(processor.MetricRows(payload)); err != nil {
			log.WithError(err).Error("failed to persist metrics")
			os.Exit(1)
		}
	}

	if cfg.Storage.Archive.Enabled {
		archiver, err := writer.NewArchiver(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create signal archiver")
			os.Exit(1)
		}
		if _, err := archiver.Archive(ctx, payload); err != nil {
			log.WithError(err).Warn("signal archive upload failed")
		}
	}

	if cfg.Kafka.Enabled {
		publisher, err := writer.NewKafkaPublisher(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create kafka publisher")
			os.Exit(1)
		}
		if err := publisher.Publish(context.WithoutCancel(ctx), payload); err != nil {
			log.WithError(err).Warn("kafka publish failed")
		}
		publisher.Close()
	}

	log.WithFields(logger.Fields{
		"run_id":   payload.RunMetadata.RunID,
		"artifact": artifactPath,
		"tickers":  len(payload.TickerSummaries),
		"signals":  len(payload.Signals),
		"issues":   len(payload.Issues),
		"duration": payload.RunMetadata.DurationSeconds,
	}).Info("signalflow run finished")
}
