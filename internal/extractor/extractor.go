package extractor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

var videoExtensions = map[string]bool{
	".mov": true,
	".mp4": true,
}

// Extractor samples frames out of every video in a directory.
type Extractor struct {
	logger *slog.Logger
	source FrameSource
}

func NewExtractor(logger *slog.Logger, source FrameSource) *Extractor {
	return &Extractor{
		logger: logger,
		source: source,
	}
}

// ErrDuplicateVideoName is returned when two videos would write frames
// under the same name.
var ErrDuplicateVideoName = errors.New("duplicate video name")

// ListVideos returns the .mov and .mp4 files under dir, sorted. Hidden entries
// and the __MACOSX folders found in archives made on macOS are skipped.
func ListVideos(dir string) ([]string, error) {
	var videos []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && (strings.HasPrefix(d.Name(), ".") || d.Name() == "__MACOSX") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if videoExtensions[strings.ToLower(filepath.Ext(path))] {
			videos = append(videos, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(videos)
	return videos, nil
}

// VideoNames maps each video to the name its frames are saved under. That is
// the file name without extension, unless several videos share it, in which
// case the path relative to root is used with separators replaced by '_'.
func VideoNames(root string, videos []string) (map[string]string, error) {
	stems := map[string]int{}
	for _, v := range videos {
		stems[stem(v)]++
	}

	names := make(map[string]string, len(videos))
	owner := map[string]string{}
	for _, v := range videos {
		name := stem(v)
		if stems[name] > 1 {
			rel, err := filepath.Rel(root, v)
			if err != nil {
				return nil, err
			}
			name = strings.ReplaceAll(strings.TrimSuffix(rel, filepath.Ext(rel)), string(filepath.Separator), "_")
		}
		if other, ok := owner[name]; ok {
			return nil, fmt.Errorf("%w: '%s' and '%s' both map to '%s'", ErrDuplicateVideoName, other, v, name)
		}
		owner[name] = v
		names[v] = name
	}
	return names, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ExtractAll writes every stride-th frame of each video in videoDir into
// outputDir and returns the total number of frames written. The first video
// that fails to decode aborts the whole run.
func (e *Extractor) ExtractAll(ctx context.Context, videoDir, outputDir string, stride int) (int, error) {
	if stride <= 0 {
		return 0, fmt.Errorf("frame stride must be positive, got %d", stride)
	}

	videos, err := ListVideos(videoDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list videos in '%s': %w", videoDir, err)
	}
	names, err := VideoNames(videoDir, videos)
	if err != nil {
		return 0, err
	}
	e.logger.Info("Extracting frames from videos", "videos", len(videos), "stride", stride)

	total := 0
	for i, videoPath := range videos {
		n, err := e.extractVideo(ctx, videoPath, names[videoPath], outputDir, stride)
		total += n
		if err != nil {
			return total, err
		}
		e.logger.Info("Extracted frames",
			"video", filepath.Base(videoPath),
			"frames", n,
			"progress", fmt.Sprintf("%d/%d", i+1, len(videos)),
		)
	}
	return total, nil
}

func (e *Extractor) extractVideo(ctx context.Context, videoPath, videoName, outputDir string, stride int) (n int, err error) {
	sink, err := NewImageSink(outputDir, videoName)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}()

	for img, ferr := range e.source.Frames(ctx, videoPath, stride) {
		if ferr != nil {
			return sink.Count(), fmt.Errorf("failed to decode '%s': %w", videoPath, ferr)
		}
		path, err := sink.Save(img)
		if err != nil {
			return sink.Count(), err
		}
		e.logger.Debug("Saved frame", "path", path)
	}
	return sink.Count(), nil
}
