// Package acquire downloads a video archive and expands it into a directory.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
)

// ArchiveName is the file the downloaded archive is written to inside the
// target directory. It is left on disk after extraction.
const ArchiveName = "videos.zip"

var ErrUnsupportedScheme = errors.New("unsupported video URL scheme")

// Fetcher writes the full content behind a URL to dst
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, dst string) error
}

// Acquirer picks a fetcher by URL scheme and unpacks what it fetched.
type Acquirer struct {
	logger  *slog.Logger
	http    Fetcher
	objects Fetcher
}

// NewAcquirer creates an acquirer. objects may be nil when no object storage
// is configured, in which case s3:// URLs are rejected.
func NewAcquirer(logger *slog.Logger, http Fetcher, objects Fetcher) *Acquirer {
	return &Acquirer{
		logger:  logger,
		http:    http,
		objects: objects,
	}
}

// DownloadAndExtract fetches the archive at rawURL into targetDir and extracts
// every entry of it into targetDir.
func (a *Acquirer) DownloadAndExtract(ctx context.Context, rawURL, targetDir string) error {
	fetcher, err := a.fetcherFor(rawURL)
	if err != nil {
		return err
	}

	archivePath := filepath.Join(targetDir, ArchiveName)

	a.logger.Info("Downloading videos", "url", rawURL)
	if err := fetcher.Fetch(ctx, rawURL, archivePath); err != nil {
		return fmt.Errorf("failed to download '%s': %w", rawURL, err)
	}

	a.logger.Info("Extracting videos", "dir", targetDir)
	n, err := Unzip(archivePath, targetDir)
	if err != nil {
		return fmt.Errorf("failed to extract '%s': %w", archivePath, err)
	}

	a.logger.Info("Video download and extraction complete", "entries", n)
	return nil
}

func (a *Acquirer) fetcherFor(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid video URL '%s': %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		if a.http != nil {
			return a.http, nil
		}
	case "s3":
		if a.objects != nil {
			return a.objects, nil
		}
		return nil, fmt.Errorf("%w: s3 URL '%s' needs a storage section in the config", ErrUnsupportedScheme, rawURL)
	}
	return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedScheme, rawURL)
}
