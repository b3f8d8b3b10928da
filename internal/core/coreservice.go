package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
	"github.com/jo-hoe/bunnyclock/internal/backend/storage"
	"github.com/jo-hoe/bunnyclock/internal/metrics"
)

var (
	ErrInvalidTime       = errors.New("hour must be within 0-23 and minute within 0-59")
	ErrInvalidPreviewKey = errors.New("preview key must not be empty")
)

const (
	kindLive    = "live"
	kindPreview = "preview"
)

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	urlResolver     storage.URLResolver
	metrics         *metrics.Metrics
}

func NewCoreService(ctx context.Context, config *ServiceConfig, m *metrics.Metrics) (*CoreService, error) {
	databaseService, err := getDatabaseService(ctx, config)
	if err != nil {
		return nil, err
	}
	urlResolver, err := storage.NewURLResolver(config.Storage)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	service := NewCoreServiceWith(config, databaseService, urlResolver, m)
	if config.Database.SeedFile != "" {
		if err := service.seed(ctx, config.Database.SeedFile); err != nil {
			_ = databaseService.Close()
			return nil, err
		}
	}
	return service, nil
}

// NewCoreServiceWith wires already constructed collaborators.
func NewCoreServiceWith(config *ServiceConfig, databaseService database.DatabaseService, urlResolver storage.URLResolver, m *metrics.Metrics) *CoreService {
	if urlResolver == nil {
		urlResolver = storage.PassthroughResolver{}
	}
	return &CoreService{
		config:          config,
		databaseService: databaseService,
		urlResolver:     urlResolver,
		metrics:         m,
	}
}

// ResolveLiveImage returns the live image for the bucket containing hour:minute, or nil.
// The minute is rounded down to its bucket before the lookup. Preview rows are never returned.
func (service *CoreService) ResolveLiveImage(ctx context.Context, hour, minute int) (*database.TimeImage, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("%w: got %d:%d", ErrInvalidTime, hour, minute)
	}
	bucket := BucketMinute(minute)

	image, err := service.databaseService.FindByHourMinute(ctx, hour, bucket)
	if err != nil {
		service.observeFailure(kindLive, err)
		return nil, fmt.Errorf("resolve live image for %02d:%02d: %w", hour, bucket, err)
	}
	if image == nil {
		service.metrics.ObserveResolution(kindLive, metrics.OutcomeNotFound)
		return nil, nil
	}
	if image.IsPreview() {
		service.metrics.ObserveResolution(kindLive, metrics.OutcomeExcluded)
		return nil, nil
	}

	service.metrics.ObserveResolution(kindLive, metrics.OutcomeFound)
	return service.materialize(ctx, image), nil
}

// ResolvePreview returns the row stored under previewKey, or nil.
func (service *CoreService) ResolvePreview(ctx context.Context, previewKey string) (*database.TimeImage, error) {
	if previewKey == "" {
		return nil, ErrInvalidPreviewKey
	}

	image, err := service.databaseService.FindByPreviewKey(ctx, previewKey)
	if err != nil {
		service.observeFailure(kindPreview, err)
		return nil, fmt.Errorf("resolve preview %q: %w", previewKey, err)
	}
	if image == nil {
		service.metrics.ObserveResolution(kindPreview, metrics.OutcomeNotFound)
		return nil, nil
	}

	service.metrics.ObserveResolution(kindPreview, metrics.OutcomeFound)
	return service.materialize(ctx, image), nil
}

func (service *CoreService) Close() error {
	return service.databaseService.Close()
}

// materialize copies the row and fills ImageURL from its storage reference when needed.
// An unresolvable reference leaves ImageURL nil rather than failing the lookup.
func (service *CoreService) materialize(ctx context.Context, image *database.TimeImage) *database.TimeImage {
	out := image.Clone()
	if out.ImageURL != nil && *out.ImageURL == "" {
		out.ImageURL = nil
	}
	if out.ImageURL != nil || out.StorageRef == "" {
		return out
	}

	resolved, err := service.urlResolver.ResolveURL(ctx, out.StorageRef)
	if err != nil {
		slog.Warn("failed to resolve storage reference", "storage_ref", out.StorageRef, "image_id", out.ID, "error", err)
		return out
	}
	out.ImageURL = &resolved
	return out
}

func (service *CoreService) observeFailure(kind string, err error) {
	if errors.Is(err, database.ErrNotUnique) {
		slog.Error("time image index returned more than one row", "kind", kind, "error", err)
		service.metrics.ObserveResolution(kind, metrics.OutcomeIntegrity)
		return
	}
	service.metrics.ObserveResolution(kind, metrics.OutcomeError)
}

func (service *CoreService) seed(ctx context.Context, path string) error {
	seeds, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	inserted := 0
	for i := range seeds {
		existing, err := service.seedTarget(ctx, &seeds[i])
		if err != nil {
			return fmt.Errorf("failed to check seed %d: %w", i, err)
		}
		// rows from an earlier start stay untouched
		if existing != nil {
			if existing.IsPreview() != seeds[i].IsPreview() {
				slog.Warn("skipping seed, its slot is held by a different kind of row",
					"seed", i, "hour", seeds[i].Hour, "minute", seeds[i].Minute,
					"seed_is_preview", seeds[i].IsPreview(), "existing_id", existing.ID)
			} else {
				slog.Debug("skipping seed, already stored", "seed", i, "existing_id", existing.ID)
			}
			continue
		}
		if _, err := service.databaseService.InsertTimeImage(ctx, &seeds[i]); err != nil {
			return fmt.Errorf("failed to seed time image %d: %w", i, err)
		}
		inserted++
	}
	slog.Info("seeded time images", "inserted", inserted, "skipped", len(seeds)-inserted, "file", path)
	return nil
}

func (service *CoreService) seedTarget(ctx context.Context, seed *database.TimeImage) (*database.TimeImage, error) {
	if seed.IsPreview() {
		return service.databaseService.FindByPreviewKey(ctx, *seed.PreviewKey)
	}
	return service.databaseService.FindByHourMinute(ctx, seed.Hour, seed.Minute)
}

func getDatabaseService(ctx context.Context, config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)

	if !config.Cache.Enabled {
		return databaseService, nil
	}
	client, err := database.NewRedisClient(ctx, database.CacheConfig{
		Address:  config.Cache.Address,
		Password: config.Cache.Password,
		DB:       config.Cache.DB,
		TTL:      config.Cache.TTL,
	})
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	slog.Info("lookup cache enabled", "address", config.Cache.Address, "ttl", config.Cache.TTL)
	return database.NewCachedDatabase(databaseService, client, config.Cache.TTL), nil
}
