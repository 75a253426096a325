// Package yolo lays out a labeled dataset in the YOLO directory format:
// <root>/{train,valid}/{images,labels} plus a data.yaml describing classes.
package yolo

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bdougie/autodataset/internal/models"
)

// DataFile is the dataset description read by YOLO trainers
const DataFile = "data.yaml"

// Writer copies images and writes their label files into a dataset root.
type Writer struct {
	root       string
	classes    []string
	trainSplit float64
}

// NewWriter creates the split directories below root
func NewWriter(root string, classes []string, trainSplit float64) (*Writer, error) {
	for _, split := range []string{models.SplitTrain, models.SplitValid} {
		for _, sub := range []string{"images", "labels"} {
			dir := filepath.Join(root, split, sub)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create '%s': %w", dir, err)
			}
		}
	}
	return &Writer{
		root:       root,
		classes:    classes,
		trainSplit: trainSplit,
	}, nil
}

// SplitFor assigns an image to a split from a hash of its name, so the same
// image always lands in the same split.
func (w *Writer) SplitFor(imageName string) string {
	h := fnv.New32a()
	h.Write([]byte(imageName))
	if float64(h.Sum32()%1000) < w.trainSplit*1000 {
		return models.SplitTrain
	}
	return models.SplitValid
}

// Write copies the source image into its split and writes one label line per
// detection next to it.
func (w *Writer) Write(imagePath string, result models.LabelResult) error {
	name := filepath.Base(imagePath)
	split := result.Split
	if split == "" {
		split = w.SplitFor(name)
	}

	if err := copyFile(filepath.Join(w.root, split, "images", name), imagePath); err != nil {
		return fmt.Errorf("failed to copy image '%s': %w", imagePath, err)
	}

	var b strings.Builder
	for _, d := range result.Detections {
		b.WriteString(FormatLabel(d))
		b.WriteByte('\n')
	}
	labelPath := filepath.Join(w.root, split, "labels", strings.TrimSuffix(name, filepath.Ext(name))+".txt")
	if err := os.WriteFile(labelPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write labels '%s': %w", labelPath, err)
	}
	return nil
}

// FormatLabel renders a detection as "<class> <cx> <cy> <w> <h>"
func FormatLabel(d models.Detection) string {
	cx := d.Box.X + d.Box.W/2
	cy := d.Box.Y + d.Box.H/2
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", d.ClassID, cx, cy, d.Box.W, d.Box.H)
}

// DataConfig is the content of data.yaml
type DataConfig struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// WriteDataConfig writes data.yaml into the dataset root
func (w *Writer) WriteDataConfig() error {
	abs, err := filepath.Abs(w.root)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(DataConfig{
		Path:  abs,
		Train: filepath.Join(models.SplitTrain, "images"),
		Val:   filepath.Join(models.SplitValid, "images"),
		NC:    len(w.classes),
		Names: w.classes,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.root, DataFile), data, 0644)
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
