package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bdougie/autodataset/internal/models"
)

const batchSize = 10 // Number of results to batch write

// ManifestFile is the JSON file listing every label result of a run
const ManifestFile = "annotations.json"

// Storage defines the interface for storing label results
type Storage interface {
	// AddResult adds a single label result
	AddResult(ctx context.Context, result models.LabelResult) error

	// Flush ensures all pending results are saved
	Flush() error
}

// FileStorage batches label results into a JSON manifest on disk
type FileStorage struct {
	results   []models.LabelResult
	mu        sync.Mutex
	outputDir string
}

// NewStorage creates a manifest writer in outputDir, replacing any manifest
// left by an earlier run.
func NewStorage(outputDir string) (*FileStorage, error) {
	if err := os.Remove(filepath.Join(outputDir, ManifestFile)); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to reset manifest: %v", err)
	}
	return &FileStorage{
		results:   []models.LabelResult{},
		outputDir: outputDir,
	}, nil
}

// AddResult adds a result to the batch and flushes if the batch is full
func (s *FileStorage) AddResult(ctx context.Context, result models.LabelResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)

	if len(s.results) >= batchSize {
		return s.flush()
	}
	return nil
}

// Flush writes all pending results to disk
func (s *FileStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *FileStorage) flush() error {
	if len(s.results) == 0 {
		return nil
	}

	resultsFilePath := filepath.Join(s.outputDir, ManifestFile)

	existing, err := ReadManifest(resultsFilePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	allResults := append(existing, s.results...)

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for results: %v", err)
	}

	file, err := os.Create(resultsFilePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(allResults); err != nil {
		return err
	}

	s.results = nil
	return file.Close()
}

// ReadManifest loads the label results stored at path
func ReadManifest(path string) ([]models.LabelResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results []models.LabelResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal existing results: %v", err)
	}
	return results, nil
}
