package analyzer

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bdougie/autodataset/internal/models"
	"github.com/bdougie/autodataset/internal/ontology"
	"github.com/bdougie/autodataset/internal/storage"
	"github.com/bdougie/autodataset/internal/yolo"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Oracle labels a directory of images with a Detector and writes the
// results as a YOLO dataset.
type Oracle struct {
	logger     *slog.Logger
	ontology   *ontology.Ontology
	detector   Detector
	trainSplit float64
	storages   []storage.Storage
}

// NewOracle creates an oracle. Results are always recorded in the JSON
// manifest of the output directory, and additionally in any extra storages.
func NewOracle(logger *slog.Logger, ont *ontology.Ontology, detector Detector, trainSplit float64, extra ...storage.Storage) *Oracle {
	return &Oracle{
		logger:     logger,
		ontology:   ont,
		detector:   detector,
		trainSplit: trainSplit,
		storages:   extra,
	}
}

// Label runs the detector over every image directly inside inputDir and
// writes the dataset into outputDir.
func (o *Oracle) Label(ctx context.Context, inputDir, outputDir string) error {
	images, err := ListImages(inputDir)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		o.logger.Warn("No images to label", "dir", inputDir)
	} else {
		o.logger.Info("Found images to label", "count", len(images), "dir", inputDir)
	}

	writer, err := yolo.NewWriter(outputDir, o.ontology.Classes(), o.trainSplit)
	if err != nil {
		return err
	}

	manifest, err := storage.NewStorage(outputDir)
	if err != nil {
		return err
	}
	storages := append([]storage.Storage{manifest}, o.storages...)

	for i, path := range images {
		work := models.WorkItem{
			ImagePath: path,
			ImageNum:  i + 1,
			Total:     len(images),
		}
		result, err := o.labelImage(ctx, work, writer)
		if err != nil {
			return fmt.Errorf("image %d/%d failed: %w", work.ImageNum, work.Total, err)
		}
		for _, s := range storages {
			if err := s.AddResult(ctx, result); err != nil {
				return fmt.Errorf("failed to store result for '%s': %w", result.Image, err)
			}
		}
		o.logger.Info("Labeled image", "image", result.Image, "progress", fmt.Sprintf("%d/%d", work.ImageNum, work.Total),
			"detections", len(result.Detections), "split", result.Split)
	}

	for _, s := range storages {
		if err := s.Flush(); err != nil {
			return fmt.Errorf("failed to flush final results: %w", err)
		}
	}

	return writer.WriteDataConfig()
}

func (o *Oracle) labelImage(ctx context.Context, work models.WorkItem, writer *yolo.Writer) (models.LabelResult, error) {
	name := filepath.Base(work.ImagePath)

	width, height, err := imageSize(work.ImagePath)
	if err != nil {
		return models.LabelResult{}, err
	}

	dets, err := o.detector.Detect(ctx, work.ImagePath)
	if err != nil {
		return models.LabelResult{}, err
	}

	result := models.LabelResult{
		Image:      name,
		Split:      writer.SplitFor(name),
		Width:      width,
		Height:     height,
		Detections: dets,
	}
	if err := writer.Write(work.ImagePath, result); err != nil {
		return models.LabelResult{}, err
	}
	return result, nil
}

// ListImages returns the png and jpeg files directly inside dir, sorted by name
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory '%s': %w", dir, err)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		images = append(images, filepath.Join(dir, e.Name()))
	}
	sort.Strings(images)
	return images, nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode '%s': %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
