// Package pipeline ties the configuration, input routing and auto-labeling
// steps together into a single dataset build.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/bdougie/autodataset/internal/analyzer"
	"github.com/bdougie/autodataset/internal/config"
)

// Router prepares the image directory for a configured input type
type Router interface {
	Prepare(ctx context.Context, inputType string, cfg *config.Config) (string, error)
}

// Run builds one dataset: route the input, then auto-label the prepared
// images into the dataset directory. Any step failing stops the build.
func Run(ctx context.Context, logger *slog.Logger, cfg *config.Config, router Router, factory analyzer.LabelerFactory) error {
	inputType, err := cfg.InputType()
	if err != nil {
		return err
	}
	logger.Info("Preparing input", "input_type", inputType)

	imageDir, err := router.Prepare(ctx, inputType, cfg)
	if err != nil {
		return err
	}
	logger.Info("Input ready", "image_dir", imageDir)

	mapping, err := cfg.OntologyMapping()
	if err != nil {
		return err
	}

	datasetDir, err := cfg.DatasetDir()
	if err != nil {
		return err
	}

	if err := analyzer.AutoLabel(ctx, logger, imageDir, datasetDir, mapping, factory); err != nil {
		return err
	}
	logger.Info("Auto-labeling finished", "dataset_dir", datasetDir)
	return nil
}
