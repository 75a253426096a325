package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/lmittmann/tint"

	"github.com/bdougie/autodataset/internal/acquire"
	"github.com/bdougie/autodataset/internal/analyzer"
	"github.com/bdougie/autodataset/internal/config"
	"github.com/bdougie/autodataset/internal/dataset"
	"github.com/bdougie/autodataset/internal/extractor"
	"github.com/bdougie/autodataset/internal/ontology"
	"github.com/bdougie/autodataset/internal/pipeline"
	"github.com/bdougie/autodataset/internal/storage"
)

func main() {
	parser := argparse.NewParser("autodataset", "Build a labeled object detection dataset from videos or images")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Path to the YAML configuration file", Default: "config.yaml"})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Log debug output, including raw model replies", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configFile); err != nil {
		logger.Error("Dataset construction failed", "error", err)
		stop()
		os.Exit(1)
	}

	fmt.Println("Dataset construction complete.")
}

func run(ctx context.Context, logger *slog.Logger, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger.Info("Loaded configuration", "path", configFile)

	if cfg.Data.InputType == config.InputVideo {
		if err := extractor.CheckDeps(); err != nil {
			return err
		}
	}

	var objects acquire.Fetcher
	if cfg.Storage.Endpoint != "" {
		fetcher, err := acquire.NewObjectFetcher(acquire.ObjectStorageConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return err
		}
		objects = fetcher
	}

	router := dataset.NewRouter(logger,
		acquire.NewAcquirer(logger, acquire.HTTPFetcher{}, objects),
		extractor.NewExtractor(logger, extractor.FFmpegSource{}))

	var catalog *storage.PostgresStorage
	defer func() {
		if catalog != nil {
			catalog.Close()
		}
	}()

	factory := func(ont *ontology.Ontology) (analyzer.Labeler, error) {
		runner, err := analyzer.NewAgent(ctx, logger, analyzer.AgentConfig{
			Model:   cfg.Labeler.Model,
			BaseURL: cfg.Labeler.BaseURL,
			Port:    cfg.Labeler.Port,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vision agent: %w", err)
		}
		detector := analyzer.NewAgentDetector(logger, runner, ont)

		var extra []storage.Storage
		if cfg.Catalog.PostgresURL != "" {
			catalog, err = storage.NewPostgresStorage(ctx, cfg.Catalog.PostgresURL, cfg.Data.DatasetDir, ont.Classes())
			if err != nil {
				return nil, err
			}
			logger.Info("Recording run in catalog", "run_id", catalog.RunID())
			extra = append(extra, catalog)
		}

		return analyzer.NewOracle(logger, ont, detector, cfg.TrainSplit(), extra...), nil
	}

	return pipeline.Run(ctx, logger, cfg, router, factory)
}
