// Package dataset decides how the labeling input is prepared: videos are
// downloaded and sampled into frames, while image folders are only checked.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/bdougie/autodataset/internal/config"
)

// ErrImageDirNotFound is returned when data.image.image_dir does not exist.
// It also matches fs.ErrNotExist.
var ErrImageDirNotFound = fmt.Errorf("image directory does not exist: %w", fs.ErrNotExist)

// Acquirer fetches and unpacks a video archive
type Acquirer interface {
	DownloadAndExtract(ctx context.Context, rawURL, targetDir string) error
}

// FrameExtractor samples frames from every video in a directory
type FrameExtractor interface {
	ExtractAll(ctx context.Context, videoDir, outputDir string, stride int) (int, error)
}

// Router prepares the directory the labeler reads images from.
type Router struct {
	logger    *slog.Logger
	acquirer  Acquirer
	extractor FrameExtractor
}

func NewRouter(logger *slog.Logger, acquirer Acquirer, extractor FrameExtractor) *Router {
	return &Router{
		logger:    logger,
		acquirer:  acquirer,
		extractor: extractor,
	}
}

// Prepare dispatches on inputType and returns the directory holding the
// images to label.
func (r *Router) Prepare(ctx context.Context, inputType string, cfg *config.Config) (string, error) {
	switch inputType {
	case config.InputVideo:
		return r.prepareVideo(ctx, cfg)
	case config.InputImage:
		return r.prepareImages(cfg)
	default:
		return "", fmt.Errorf("%w: got '%s'", config.ErrInvalidInputType, inputType)
	}
}

func (r *Router) prepareVideo(ctx context.Context, cfg *config.Config) (string, error) {
	r.logger.Info("Dataset type is 'video'. Processing video dataset...")

	datasetDir, err := cfg.DatasetDir()
	if err != nil {
		return "", err
	}
	video, err := cfg.VideoSettings()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(video.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create video directory '%s': %w", video.Dir, err)
	}
	if err := os.MkdirAll(datasetDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create dataset directory '%s': %w", datasetDir, err)
	}

	if err := r.acquirer.DownloadAndExtract(ctx, video.URL, video.Dir); err != nil {
		return "", err
	}

	frames, err := r.extractor.ExtractAll(ctx, video.Dir, datasetDir, video.Stride)
	if err != nil {
		return "", err
	}
	r.logger.Info("Frame extraction complete", "frames", frames, "dir", datasetDir)

	return datasetDir, nil
}

func (r *Router) prepareImages(cfg *config.Config) (string, error) {
	r.logger.Info("Dataset type is 'image'. Processing existing image dataset...")

	datasetDir, err := cfg.DatasetDir()
	if err != nil {
		return "", err
	}
	imageDir, err := cfg.ImageDir()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(imageDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: '%s'", ErrImageDirNotFound, imageDir)
		}
		return "", err
	}

	if err := os.MkdirAll(datasetDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create dataset directory '%s': %w", datasetDir, err)
	}
	return imageDir, nil
}
