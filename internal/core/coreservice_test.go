package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
	"github.com/jo-hoe/bunnyclock/internal/backend/storage"
	"github.com/jo-hoe/bunnyclock/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCoreService(t *testing.T) *CoreService {
	t.Helper()
	cfg := &ServiceConfig{
		Database: Database{
			Type:             "sqlite",
			ConnectionString: ":memory:",
		},
	}
	svc, err := NewCoreService(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func strPtr(s string) *string { return &s }

func insert(t *testing.T, svc *CoreService, image database.TimeImage) {
	t.Helper()
	if _, err := svc.databaseService.InsertTimeImage(context.Background(), &image); err != nil {
		t.Fatalf("InsertTimeImage error: %v", err)
	}
}

func TestResolveLiveImage_ExactBucket(t *testing.T) {
	svc := newTestCoreService(t)
	insert(t, svc, database.TimeImage{Hour: 9, Minute: 20, ImageURL: strPtr("a.png"), Scale: 1.0, Credits: "x"})

	got, err := svc.ResolveLiveImage(context.Background(), 9, 20)
	if err != nil {
		t.Fatalf("ResolveLiveImage error: %v", err)
	}
	if got == nil {
		t.Fatal("expected record for 09:20, got nil")
	}
	if got.Hour != 9 || got.Minute != 20 || *got.ImageURL != "a.png" || got.Scale != 1.0 ||
		got.OffsetX != 0 || got.OffsetY != 0 || got.Credits != "x" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestResolveLiveImage_RoundsDownToBucket(t *testing.T) {
	svc := newTestCoreService(t)
	insert(t, svc, database.TimeImage{Hour: 9, Minute: 20, ImageURL: strPtr("a.png"), Scale: 1.0, Credits: "x"})

	for _, minute := range []int{21, 25, 29} {
		got, err := svc.ResolveLiveImage(context.Background(), 9, minute)
		if err != nil {
			t.Fatalf("ResolveLiveImage(9, %d) error: %v", minute, err)
		}
		if got == nil || got.Minute != 20 {
			t.Fatalf("ResolveLiveImage(9, %d) = %+v, want the 09:20 record", minute, got)
		}
	}

	got, err := svc.ResolveLiveImage(context.Background(), 9, 30)
	if err != nil {
		t.Fatalf("ResolveLiveImage(9, 30) error: %v", err)
	}
	if got != nil {
		t.Fatalf("ResolveLiveImage(9, 30) = %+v, want nil (next bucket is empty)", got)
	}
}

func TestResolveLiveImage_ExcludesPreviewRows(t *testing.T) {
	svc := newTestCoreService(t)
	insert(t, svc, database.TimeImage{Hour: 14, Minute: 30, PreviewKey: strPtr("demo"), ImageURL: strPtr("p.png"), Scale: 1})

	live, err := svc.ResolveLiveImage(context.Background(), 14, 30)
	if err != nil {
		t.Fatalf("ResolveLiveImage error: %v", err)
	}
	if live != nil {
		t.Fatalf("expected preview row to be excluded, got %+v", live)
	}

	preview, err := svc.ResolvePreview(context.Background(), "demo")
	if err != nil {
		t.Fatalf("ResolvePreview error: %v", err)
	}
	if preview == nil || preview.PreviewKey == nil || *preview.PreviewKey != "demo" || preview.Minute != 30 {
		t.Fatalf("expected the demo preview row, got %+v", preview)
	}
}

func TestResolveLiveImage_NeverReturnsPreviewForAnyMinute(t *testing.T) {
	svc := newTestCoreService(t)
	for h := 0; h < 24; h += 5 {
		insert(t, svc, database.TimeImage{Hour: h, Minute: 40, PreviewKey: strPtr("k" + string(rune('a'+h))), Scale: 1})
	}
	for h := 0; h < 24; h += 5 {
		for m := 0; m < 60; m++ {
			got, err := svc.ResolveLiveImage(context.Background(), h, BucketMinute(m))
			if err != nil {
				t.Fatalf("ResolveLiveImage(%d, %d) error: %v", h, m, err)
			}
			if got != nil && got.IsPreview() {
				t.Fatalf("ResolveLiveImage(%d, %d) returned preview row %+v", h, m, got)
			}
		}
	}
}

func TestResolveLiveImage_DuplicateLiveRowsFailLoudly(t *testing.T) {
	svc := newTestCoreService(t)
	insert(t, svc, database.TimeImage{Hour: 11, Minute: 10, ImageURL: strPtr("one.png"), Scale: 1})
	insert(t, svc, database.TimeImage{Hour: 11, Minute: 10, ImageURL: strPtr("two.png"), Scale: 1})

	got, err := svc.ResolveLiveImage(context.Background(), 11, 10)
	if !errors.Is(err, database.ErrNotUnique) {
		t.Fatalf("expected ErrNotUnique, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no record alongside integrity error, got %+v", got)
	}
}

func TestResolveLiveImage_InvalidInput(t *testing.T) {
	svc := newTestCoreService(t)
	tests := []struct{ hour, minute int }{
		{-1, 0}, {24, 0}, {0, -1}, {0, 60},
	}
	for _, tt := range tests {
		if _, err := svc.ResolveLiveImage(context.Background(), tt.hour, tt.minute); !errors.Is(err, ErrInvalidTime) {
			t.Errorf("ResolveLiveImage(%d, %d): expected ErrInvalidTime, got %v", tt.hour, tt.minute, err)
		}
	}
}

func TestResolvePreview_NotFoundAndEmptyKey(t *testing.T) {
	svc := newTestCoreService(t)

	got, err := svc.ResolvePreview(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("ResolvePreview(nope) = %+v, %v; want nil, nil", got, err)
	}
	if _, err := svc.ResolvePreview(context.Background(), ""); !errors.Is(err, ErrInvalidPreviewKey) {
		t.Fatalf("expected ErrInvalidPreviewKey, got %v", err)
	}
}

type fakeResolver struct {
	urls map[string]string
}

func (f fakeResolver) ResolveURL(_ context.Context, ref string) (string, error) {
	if u, ok := f.urls[ref]; ok {
		return u, nil
	}
	return "", storage.ErrUnresolvable
}

func TestResolveLiveImage_MaterializesStorageReference(t *testing.T) {
	db, err := database.NewDatabase(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	svc := NewCoreServiceWith(&ServiceConfig{}, db, fakeResolver{urls: map[string]string{
		"bunnies/0600.png": "https://cdn.example.com/signed/0600.png",
	}}, nil)

	insert(t, svc, database.TimeImage{Hour: 6, Minute: 0, StorageRef: "bunnies/0600.png", Scale: 1})
	insert(t, svc, database.TimeImage{Hour: 6, Minute: 10, StorageRef: "missing.png", Scale: 1})
	insert(t, svc, database.TimeImage{Hour: 6, Minute: 20, ImageURL: strPtr(""), Scale: 1})

	resolved, err := svc.ResolveLiveImage(context.Background(), 6, 0)
	if err != nil {
		t.Fatalf("ResolveLiveImage(6, 0) error: %v", err)
	}
	if resolved == nil || resolved.ImageURL == nil || *resolved.ImageURL != "https://cdn.example.com/signed/0600.png" {
		t.Fatalf("expected resolved URL, got %+v", resolved)
	}

	for _, minute := range []int{10, 20} {
		unresolved, err := svc.ResolveLiveImage(context.Background(), 6, minute)
		if err != nil {
			t.Fatalf("ResolveLiveImage(6, %d) error: %v", minute, err)
		}
		if unresolved == nil {
			t.Fatalf("ResolveLiveImage(6, %d): expected record with nil URL, got nil record", minute)
		}
		if unresolved.ImageURL != nil {
			t.Fatalf("ResolveLiveImage(6, %d): expected nil ImageURL, got %q", minute, *unresolved.ImageURL)
		}
	}
}

func TestResolveLiveImage_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics.New error: %v", err)
	}
	db, err := database.NewDatabase(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	svc := NewCoreServiceWith(&ServiceConfig{}, db, nil, m)
	insert(t, svc, database.TimeImage{Hour: 1, Minute: 0, ImageURL: strPtr("a.png"), Scale: 1})

	_, _ = svc.ResolveLiveImage(context.Background(), 1, 0)
	_, _ = svc.ResolveLiveImage(context.Background(), 2, 0)

	if n := testutil.CollectAndCount(reg, "bunnyclock_resolver_resolutions_total"); n != 2 {
		t.Fatalf("expected 2 label combinations, got %d", n)
	}
}

func TestNewCoreService_SeedFile(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	seed := `- hour: 9
  minute: 20
  imageUrl: a.png
  scale: 1
  credits: x
- hour: 14
  minute: 30
  previewKey: demo
  imageUrl: p.png
  scale: 0.8
  offsetX: 12
`
	if err := os.WriteFile(seedPath, []byte(seed), 0644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	cfg := &ServiceConfig{Database: Database{Type: "sqlite", ConnectionString: ":memory:", SeedFile: seedPath}}
	svc, err := NewCoreService(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	live, err := svc.ResolveLiveImage(context.Background(), 9, 25)
	if err != nil || live == nil || *live.ImageURL != "a.png" {
		t.Fatalf("expected seeded live record, got %+v, %v", live, err)
	}
	preview, err := svc.ResolvePreview(context.Background(), "demo")
	if err != nil || preview == nil || preview.OffsetX != 12 || preview.Scale != 0.8 {
		t.Fatalf("expected seeded preview record, got %+v, %v", preview, err)
	}
}

func TestNewCoreService_SeedingTwiceKeepsRowsUnique(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	seed := `- hour: 9
  minute: 20
  imageUrl: a.png
  scale: 1
- hour: 14
  minute: 30
  previewKey: demo
  imageUrl: p.png
  scale: 1
`
	if err := os.WriteFile(seedPath, []byte(seed), 0644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}
	cfg := &ServiceConfig{Database: Database{
		Type:             "sqlite",
		ConnectionString: filepath.Join(dir, "clock.db"),
		SeedFile:         seedPath,
	}}

	for i := 0; i < 2; i++ {
		svc, err := NewCoreService(context.Background(), cfg, nil)
		if err != nil {
			t.Fatalf("start %d: NewCoreService error: %v", i, err)
		}
		if _, err := svc.ResolveLiveImage(context.Background(), 9, 20); err != nil {
			t.Fatalf("start %d: expected unique live row, got %v", i, err)
		}
		if _, err := svc.ResolvePreview(context.Background(), "demo"); err != nil {
			t.Fatalf("start %d: expected unique preview row, got %v", i, err)
		}
		if err := svc.Close(); err != nil {
			t.Fatalf("start %d: Close error: %v", i, err)
		}
	}
}

func TestNewCoreService_UnsupportedDatabase(t *testing.T) {
	cfg := &ServiceConfig{Database: Database{Type: "oracle"}}
	if _, err := NewCoreService(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}
