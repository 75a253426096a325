package pipeline

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/autodataset/internal/analyzer"
	"github.com/bdougie/autodataset/internal/config"
	"github.com/bdougie/autodataset/internal/dataset"
	"github.com/bdougie/autodataset/internal/models"
	"github.com/bdougie/autodataset/internal/ontology"
	"github.com/bdougie/autodataset/internal/yolo"
)

var errUnused = errors.New("video input not expected")

type noVideo struct{}

func (noVideo) DownloadAndExtract(ctx context.Context, rawURL, targetDir string) error {
	return errUnused
}

func (noVideo) ExtractAll(ctx context.Context, videoDir, outputDir string, stride int) (int, error) {
	return 0, errUnused
}

type labelCall struct {
	inputDir, outputDir string
}

type recorder struct {
	ontologies []*ontology.Ontology
	calls      []labelCall
}

func (r *recorder) Label(ctx context.Context, inputDir, outputDir string) error {
	r.calls = append(r.calls, labelCall{inputDir, outputDir})
	return nil
}

func (r *recorder) factory(ont *ontology.Ontology) (analyzer.Labeler, error) {
	r.ontologies = append(r.ontologies, ont)
	return r, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const imageConfig = `
data:
  input_type: image
  dataset_dir: ./out
  image:
    image_dir: ./imgs
ontology:
  a person: person
`

func newRouter() *dataset.Router {
	return dataset.NewRouter(discardLogger(), noVideo{}, noVideo{})
}

func TestRun_ImageMode(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("imgs", 0755))
	for _, name := range []string{"1.jpg", "2.jpg", "3.png"} {
		require.NoError(t, os.WriteFile(filepath.Join("imgs", name), nil, 0644))
	}

	cfg, err := config.Parse([]byte(imageConfig))
	require.NoError(t, err)

	rec := &recorder{}
	require.NoError(t, Run(context.Background(), discardLogger(), cfg, newRouter(), rec.factory))

	assert.DirExists(t, "out")
	assert.Equal(t, []labelCall{{"./imgs", "./out"}}, rec.calls)
	require.Len(t, rec.ontologies, 1)
	assert.Equal(t, map[string]string{"a person": "person"}, rec.ontologies[0].Map())
}

func TestRun_ImageDirMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Parse([]byte(imageConfig))
	require.NoError(t, err)

	rec := &recorder{}
	err = Run(context.Background(), discardLogger(), cfg, newRouter(), rec.factory)
	assert.ErrorIs(t, err, dataset.ErrImageDirNotFound)
	assert.Empty(t, rec.calls)
	assert.NoDirExists(t, "out")
}

func TestRun_InvalidInputType(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Parse([]byte(`
data:
  input_type: audio
  dataset_dir: ./out
ontology:
  a person: person
`))
	require.NoError(t, err)

	rec := &recorder{}
	err = Run(context.Background(), discardLogger(), cfg, newRouter(), rec.factory)
	assert.ErrorIs(t, err, config.ErrInvalidInputType)
	assert.Empty(t, rec.ontologies)
	assert.NoDirExists(t, "out")
}

func TestRun_MissingOntology(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("imgs", 0755))
	cfg, err := config.Parse([]byte(`
data:
  input_type: image
  dataset_dir: ./out
  image:
    image_dir: ./imgs
`))
	require.NoError(t, err)

	rec := &recorder{}
	err = Run(context.Background(), discardLogger(), cfg, newRouter(), rec.factory)
	assert.ErrorIs(t, err, config.ErrMissingKey)
	assert.Empty(t, rec.calls)
}

type staticRouter struct {
	dir string
}

func (s staticRouter) Prepare(ctx context.Context, inputType string, cfg *config.Config) (string, error) {
	return s.dir, nil
}

func TestRun_LabelsTheRoutedDirectory(t *testing.T) {
	cfg, err := config.Parse([]byte(`
data:
  input_type: video
  dataset_dir: ./dataset
ontology:
  a forklift: forklift
`))
	require.NoError(t, err)

	rec := &recorder{}
	err = Run(context.Background(), discardLogger(), cfg, staticRouter{dir: "./dataset"}, rec.factory)
	require.NoError(t, err)
	assert.Equal(t, []labelCall{{"./dataset", "./dataset"}}, rec.calls)
}

type boxDetector struct{}

func (boxDetector) Detect(ctx context.Context, imagePath string) ([]models.Detection, error) {
	return []models.Detection{{Class: "person", Prompt: "a person", Confidence: 1, Box: models.Box{W: 1, H: 1}}}, nil
}

func TestRun_BuildsYOLODataset(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("imgs", 0755))
	f, err := os.Create(filepath.Join("imgs", "1.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 10, 10))))
	require.NoError(t, f.Close())

	cfg, err := config.Parse([]byte(imageConfig))
	require.NoError(t, err)

	factory := func(ont *ontology.Ontology) (analyzer.Labeler, error) {
		return analyzer.NewOracle(discardLogger(), ont, boxDetector{}, 1), nil
	}
	require.NoError(t, Run(context.Background(), discardLogger(), cfg, newRouter(), factory))

	assert.FileExists(t, filepath.Join("out", yolo.DataFile))
	labels, err := os.ReadFile(filepath.Join("out", "train", "labels", "1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0 0.500000 0.500000 1.000000 1.000000\n", string(labels))
}
