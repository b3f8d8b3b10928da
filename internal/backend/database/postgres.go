package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDatabase struct {
	pool *pgxpool.Pool
}

func NewPostgresDatabase(ctx context.Context, connectionString string) (DatabaseService, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &PostgresDatabase{pool: pool}, nil
}

func (p *PostgresDatabase) CreateDatabase(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS time_images (
			id TEXT PRIMARY KEY,
			hour SMALLINT NOT NULL,
			minute SMALLINT NOT NULL,
			preview_key TEXT,
			image_url TEXT,
			storage_ref TEXT NOT NULL DEFAULT '',
			scale DOUBLE PRECISION NOT NULL DEFAULT 1,
			offset_x INTEGER NOT NULL DEFAULT 0,
			offset_y INTEGER NOT NULL DEFAULT 0,
			credits TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_time_images_hour_minute ON time_images (hour, minute)`,
		`CREATE INDEX IF NOT EXISTS idx_time_images_preview_key ON time_images (preview_key)`,
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresDatabase) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *PostgresDatabase) DoesDatabaseExist() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.pool.Ping(ctx) == nil
}

func (p *PostgresDatabase) InsertTimeImage(ctx context.Context, image *TimeImage) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", err
	}
	createdAt := image.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO time_images (` + timeImageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := p.pool.Exec(ctx, query,
		id, image.Hour, image.Minute, image.PreviewKey, image.ImageURL, image.StorageRef,
		image.Scale, image.OffsetX, image.OffsetY, image.Credits, createdAt); err != nil {
		return "", fmt.Errorf("insert time image: %w", err)
	}
	return id, nil
}

func (p *PostgresDatabase) FindByHourMinute(ctx context.Context, hour, minute int) (*TimeImage, error) {
	image, err := p.queryUnique(ctx,
		"SELECT "+timeImageColumns+" FROM time_images WHERE hour = $1 AND minute = $2 LIMIT 2", hour, minute)
	if err != nil {
		return nil, fmt.Errorf("lookup %02d:%02d: %w", hour, minute, err)
	}
	return image, nil
}

func (p *PostgresDatabase) FindByPreviewKey(ctx context.Context, previewKey string) (*TimeImage, error) {
	image, err := p.queryUnique(ctx,
		"SELECT "+timeImageColumns+" FROM time_images WHERE preview_key = $1 LIMIT 2", previewKey)
	if err != nil {
		return nil, fmt.Errorf("lookup preview %q: %w", previewKey, err)
	}
	return image, nil
}

func (p *PostgresDatabase) queryUnique(ctx context.Context, query string, args ...any) (*TimeImage, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found *TimeImage
	for rows.Next() {
		if found != nil {
			return nil, ErrNotUnique
		}
		image, err := scanPostgresRow(rows)
		if err != nil {
			return nil, err
		}
		found = image
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

func scanPostgresRow(rows pgx.Rows) (*TimeImage, error) {
	var image TimeImage
	if err := rows.Scan(&image.ID, &image.Hour, &image.Minute, &image.PreviewKey, &image.ImageURL, &image.StorageRef,
		&image.Scale, &image.OffsetX, &image.OffsetY, &image.Credits, &image.CreatedAt); err != nil {
		return nil, err
	}
	return &image, nil
}
