package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeImageColumns = "id, hour, minute, preview_key, image_url, storage_ref, scale, offset_x, offset_y, credits, created_at"

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// Every connection to an in-memory database opens a fresh, empty one.
	if strings.Contains(connectionString, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS time_images (
			id TEXT PRIMARY KEY,
			hour INTEGER NOT NULL,
			minute INTEGER NOT NULL,
			preview_key TEXT,
			image_url TEXT,
			storage_ref TEXT NOT NULL DEFAULT '',
			scale REAL NOT NULL DEFAULT 1,
			offset_x INTEGER NOT NULL DEFAULT 0,
			offset_y INTEGER NOT NULL DEFAULT 0,
			credits TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_time_images_hour_minute ON time_images (hour, minute)`,
		`CREATE INDEX IF NOT EXISTS idx_time_images_preview_key ON time_images (preview_key)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) InsertTimeImage(ctx context.Context, image *TimeImage) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", err
	}
	createdAt := image.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO time_images ("+timeImageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, image.Hour, image.Minute, image.PreviewKey, image.ImageURL, image.StorageRef,
		image.Scale, image.OffsetX, image.OffsetY, image.Credits, createdAt.UnixNano())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteDatabase) FindByHourMinute(ctx context.Context, hour, minute int) (*TimeImage, error) {
	image, err := s.queryUnique(ctx,
		"SELECT "+timeImageColumns+" FROM time_images WHERE hour = ? AND minute = ? LIMIT 2", hour, minute)
	if err != nil {
		return nil, fmt.Errorf("lookup %02d:%02d: %w", hour, minute, err)
	}
	return image, nil
}

func (s *SQLiteDatabase) FindByPreviewKey(ctx context.Context, previewKey string) (*TimeImage, error) {
	image, err := s.queryUnique(ctx,
		"SELECT "+timeImageColumns+" FROM time_images WHERE preview_key = ? LIMIT 2", previewKey)
	if err != nil {
		return nil, fmt.Errorf("lookup preview %q: %w", previewKey, err)
	}
	return image, nil
}

// queryUnique scans at most two rows so that a second match can be reported as ErrNotUnique.
func (s *SQLiteDatabase) queryUnique(ctx context.Context, query string, args ...any) (*TimeImage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	var found *TimeImage
	for rows.Next() {
		if found != nil {
			return nil, ErrNotUnique
		}
		image, err := scanSQLiteRow(rows)
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

func scanSQLiteRow(rows *sql.Rows) (*TimeImage, error) {
	var (
		image      TimeImage
		previewKey sql.NullString
		imageURL   sql.NullString
		createdAt  int64
	)
	if err := rows.Scan(&image.ID, &image.Hour, &image.Minute, &previewKey, &imageURL, &image.StorageRef,
		&image.Scale, &image.OffsetX, &image.OffsetY, &image.Credits, &createdAt); err != nil {
		return nil, err
	}
	if previewKey.Valid {
		image.PreviewKey = &previewKey.String
	}
	if imageURL.Valid {
		image.ImageURL = &imageURL.String
	}
	image.CreatedAt = time.Unix(0, createdAt)
	return &image, nil
}
