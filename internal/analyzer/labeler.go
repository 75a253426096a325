package analyzer

import (
	"context"
	"log/slog"

	"github.com/bdougie/autodataset/internal/ontology"
)

// Labeler turns a directory of images into a labeled dataset
type Labeler interface {
	Label(ctx context.Context, inputDir, outputDir string) error
}

// LabelerFactory binds a labeler to an ontology
type LabelerFactory func(ont *ontology.Ontology) (Labeler, error)

// AutoLabel builds the ontology from mapping, obtains a labeler for it and
// labels imageDir into datasetDir. Labeler errors are returned unchanged.
func AutoLabel(ctx context.Context, logger *slog.Logger, imageDir, datasetDir string, mapping []ontology.Caption, factory LabelerFactory) error {
	ont, err := ontology.New(mapping)
	if err != nil {
		return err
	}

	labeler, err := factory(ont)
	if err != nil {
		return err
	}

	logger.Info("Starting auto-labeling of images...", "input", imageDir, "output", datasetDir, "classes", ont.Classes())
	return labeler.Label(ctx, imageDir, datasetDir)
}
