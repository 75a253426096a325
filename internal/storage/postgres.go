package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/autodataset/internal/embeddings"
	"github.com/bdougie/autodataset/internal/models"
)

// PostgresStorage records every labeled image of a run in a Postgres catalog.
// Each image row carries its class histogram embedding so similar frames can
// be found with pgvector distance operators.
type PostgresStorage struct {
	pool    *pgxpool.Pool
	runID   string
	classes []string
}

// NewPostgresStorage connects, makes sure the schema exists and registers a
// new labeling run.
func NewPostgresStorage(ctx context.Context, connString, datasetDir string, classes []string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStorage{
		pool:    pool,
		runID:   uuid.NewString(),
		classes: classes,
	}

	_, err = pool.Exec(ctx,
		"INSERT INTO runs (id, dataset_dir, classes, created_at) VALUES ($1, $2, $3, $4)",
		s.runID, datasetDir, classes, time.Now())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create run entry: %w", err)
	}

	return s, nil
}

// RunID identifies this run in the catalog
func (s *PostgresStorage) RunID() string {
	return s.runID
}

// Close closes the database connection
func (s *PostgresStorage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// AddResult stores an image and its detections in one transaction
func (s *PostgresStorage) AddResult(ctx context.Context, result models.LabelResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var imageID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO images
        (run_id, name, split, width, height, embedding, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`,
		s.runID, result.Image, result.Split, result.Width, result.Height,
		pgvector.NewVector(embeddings.FromResult(result, len(s.classes))), time.Now()).Scan(&imageID)
	if err != nil {
		return fmt.Errorf("failed to store image '%s': %w", result.Image, err)
	}

	batch := &pgx.Batch{}
	for _, d := range result.Detections {
		batch.Queue(
			`INSERT INTO detections
            (image_id, class, class_id, prompt, confidence, x, y, w, h)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			imageID, d.Class, d.ClassID, d.Prompt, d.Confidence, d.Box.X, d.Box.Y, d.Box.W, d.Box.H)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store detections for '%s': %w", result.Image, err)
		}
	}

	return tx.Commit(ctx)
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// InitSchema creates the catalog schema if it doesn't exist
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	var exists bool
	err := pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	if !exists {
		if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            dataset_dir TEXT NOT NULL,
            classes TEXT[] NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS images (
            id BIGSERIAL PRIMARY KEY,
            run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            split TEXT NOT NULL,
            width INTEGER NOT NULL,
            height INTEGER NOT NULL,
            embedding vector,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(run_id, name)
        );

        CREATE TABLE IF NOT EXISTS detections (
            id BIGSERIAL PRIMARY KEY,
            image_id BIGINT REFERENCES images(id) ON DELETE CASCADE,
            class TEXT NOT NULL,
            class_id INTEGER NOT NULL,
            prompt TEXT NOT NULL,
            confidence DOUBLE PRECISION NOT NULL,
            x DOUBLE PRECISION NOT NULL,
            y DOUBLE PRECISION NOT NULL,
            w DOUBLE PRECISION NOT NULL,
            h DOUBLE PRECISION NOT NULL
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_images_run_id ON images(run_id);
        CREATE INDEX IF NOT EXISTS idx_detections_image_id ON detections(image_id);
        CREATE INDEX IF NOT EXISTS idx_detections_class ON detections(class);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
