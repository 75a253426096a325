package acquire

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

var ErrUnsafePath = errors.New("archive entry escapes the target directory")

// Unzip extracts every entry of the archive at src into dir and returns the
// number of files written.
func Unzip(src, dir string) (int, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, f := range r.File {
		target := filepath.Join(root, f.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return written, fmt.Errorf("%w: '%s'", ErrUnsafePath, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return written, err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, err
		}
		if err := extractFile(f, target); err != nil {
			return written, fmt.Errorf("entry '%s': %w", f.Name, err)
		}
		written++
	}
	return written, nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return err
	}
	return out.Close()
}
