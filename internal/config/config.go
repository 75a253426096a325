// Package config loads the YAML run configuration and exposes point-of-use
// accessors that fail with a KeyError when a required key is absent.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/bdougie/autodataset/internal/ontology"
)

// Input types accepted in data.input_type.
const (
	InputVideo = "video"
	InputImage = "image"
)

// Defaults for the optional labeler section.
const (
	DefaultModel      = "llama3.2-vision:11b"
	DefaultBaseURL    = "http://localhost"
	DefaultPort       = 11434
	DefaultTrainSplit = 0.8
)

var (
	ErrMissingKey       = errors.New("missing configuration key")
	ErrInvalidInputType = errors.New("invalid input type, must be 'video' or 'image'")
	ErrInvalidValue     = errors.New("invalid configuration value")
)

// KeyError names a required configuration key that was not present.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("configuration key '%s' not found", e.Key)
}

func (e *KeyError) Unwrap() error {
	return ErrMissingKey
}

// Config is the parsed configuration file.
type Config struct {
	Data     Data          `yaml:"data"`
	Ontology Captions      `yaml:"ontology"`
	Labeler  Labeler       `yaml:"labeler"`
	Catalog  Catalog       `yaml:"catalog"`
	Storage  ObjectStorage `yaml:"storage"`
}

// Data holds the dataset input and output settings.
type Data struct {
	InputType  string `yaml:"input_type"`
	DatasetDir string `yaml:"dataset_dir"`
	Video      *Video `yaml:"video"`
	Image      *Image `yaml:"image"`
}

// Video holds settings used when input_type is "video".
type Video struct {
	URL    string `yaml:"video_url"`
	Dir    string `yaml:"video_dir"`
	Stride *int   `yaml:"frame_stride"`
}

// Image holds settings used when input_type is "image".
type Image struct {
	Dir string `yaml:"image_dir"`
}

// Labeler configures the vision model used as the labeling oracle.
type Labeler struct {
	Model      string   `yaml:"model" env:"AUTODATASET_MODEL"`
	BaseURL    string   `yaml:"base_url" env:"AUTODATASET_OLLAMA_URL"`
	Port       int      `yaml:"port" env:"AUTODATASET_OLLAMA_PORT"`
	TrainSplit *float64 `yaml:"train_split"`
}

// Catalog configures the optional Postgres label catalog.
type Catalog struct {
	PostgresURL string `yaml:"postgres_url" env:"AUTODATASET_CATALOG_URL"`
}

// ObjectStorage configures access to s3:// video archives.
type ObjectStorage struct {
	Endpoint  string `yaml:"endpoint" env:"AUTODATASET_S3_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"AUTODATASET_S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"AUTODATASET_S3_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// VideoSettings is the validated video section.
type VideoSettings struct {
	URL    string
	Dir    string
	Stride int
}

// Load reads and parses the configuration file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config '%s': %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes, applies environment overrides and
// fills defaults for the optional sections.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for _, section := range []any{&cfg.Labeler, &cfg.Catalog, &cfg.Storage} {
		if err := env.Parse(section); err != nil {
			return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
		}
	}

	if cfg.Labeler.Model == "" {
		cfg.Labeler.Model = DefaultModel
	}
	if cfg.Labeler.BaseURL == "" {
		cfg.Labeler.BaseURL = DefaultBaseURL
	}
	if cfg.Labeler.Port == 0 {
		cfg.Labeler.Port = DefaultPort
	}
	if split := cfg.Labeler.TrainSplit; split != nil && (*split < 0 || *split > 1) {
		return nil, fmt.Errorf("%w: labeler.train_split must be within [0, 1], got %v", ErrInvalidValue, *split)
	}

	return cfg, nil
}

// TrainSplit returns labeler.train_split, or DefaultTrainSplit when the key
// is absent. An explicit 0 sends every image to the validation split.
func (c *Config) TrainSplit() float64 {
	if c.Labeler.TrainSplit == nil {
		return DefaultTrainSplit
	}
	return *c.Labeler.TrainSplit
}

// InputType returns data.input_type. The value itself is not validated here.
func (c *Config) InputType() (string, error) {
	if c.Data.InputType == "" {
		return "", &KeyError{Key: "data.input_type"}
	}
	return c.Data.InputType, nil
}

// DatasetDir returns data.dataset_dir
func (c *Config) DatasetDir() (string, error) {
	if c.Data.DatasetDir == "" {
		return "", &KeyError{Key: "data.dataset_dir"}
	}
	return c.Data.DatasetDir, nil
}

// VideoSettings returns the data.video section with every key present and a
// positive frame stride.
func (c *Config) VideoSettings() (*VideoSettings, error) {
	v := c.Data.Video
	if v == nil {
		return nil, &KeyError{Key: "data.video"}
	}
	if v.URL == "" {
		return nil, &KeyError{Key: "data.video.video_url"}
	}
	if v.Dir == "" {
		return nil, &KeyError{Key: "data.video.video_dir"}
	}
	if v.Stride == nil {
		return nil, &KeyError{Key: "data.video.frame_stride"}
	}
	if *v.Stride <= 0 {
		return nil, fmt.Errorf("%w: data.video.frame_stride must be a positive integer, got %d", ErrInvalidValue, *v.Stride)
	}
	return &VideoSettings{URL: v.URL, Dir: v.Dir, Stride: *v.Stride}, nil
}

// ImageDir returns data.image.image_dir
func (c *Config) ImageDir() (string, error) {
	if c.Data.Image == nil {
		return "", &KeyError{Key: "data.image"}
	}
	if c.Data.Image.Dir == "" {
		return "", &KeyError{Key: "data.image.image_dir"}
	}
	return c.Data.Image.Dir, nil
}

// OntologyMapping returns the ontology section in file order
func (c *Config) OntologyMapping() ([]ontology.Caption, error) {
	if c.Ontology == nil {
		return nil, &KeyError{Key: "ontology"}
	}
	out := make([]ontology.Caption, len(c.Ontology))
	copy(out, c.Ontology)
	return out, nil
}

// Captions is the ontology section decoded in file order.
type Captions []ontology.Caption

// UnmarshalYAML walks the mapping node so that prompt order is preserved.
func (c *Captions) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: ontology must be a mapping of prompt to class label", node.Line)
	}
	out := make(Captions, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var prompt, class string
		if err := node.Content[i].Decode(&prompt); err != nil {
			return fmt.Errorf("line %d: ontology prompt: %w", node.Content[i].Line, err)
		}
		if err := node.Content[i+1].Decode(&class); err != nil {
			return fmt.Errorf("line %d: ontology class for '%s': %w", node.Content[i+1].Line, prompt, err)
		}
		out = append(out, ontology.Caption{Prompt: prompt, Class: class})
	}
	*c = out
	return nil
}
