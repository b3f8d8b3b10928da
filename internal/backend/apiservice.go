package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
	"github.com/jo-hoe/bunnyclock/internal/backend/render"
	"github.com/jo-hoe/bunnyclock/internal/backend/storage"
	"github.com/jo-hoe/bunnyclock/internal/core"
	"github.com/jo-hoe/bunnyclock/internal/editor"
	"github.com/jo-hoe/bunnyclock/internal/scheduler"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/utils/clock"
)

const (
	mimePNG  = "image/png"
	mimeJSON = "application/json"
)

// ClockSource provides the image currently on the face. scheduler.Scheduler satisfies it.
type ClockSource interface {
	Snapshot() scheduler.Snapshot
}

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
	clockSource ClockSource
	gatherer    prometheus.Gatherer
	fetcher     storage.ImageFetcher
	clock       clock.PassiveClock
	location    *time.Location
}

type Option func(*APIService)

func WithFetcher(f storage.ImageFetcher) Option {
	return func(s *APIService) { s.fetcher = f }
}

func WithClock(c clock.PassiveClock) Option {
	return func(s *APIService) { s.clock = c }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *APIService) { s.gatherer = g }
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService, clockSource ClockSource, opts ...Option) *APIService {
	location, err := config.Location()
	if err != nil {
		slog.Warn("falling back to local time", "timezone", config.Timezone, "error", err)
		location = time.Local
	}
	s := &APIService{
		config:      config,
		coreService: coreService,
		clockSource: clockSource,
		gatherer:    prometheus.DefaultGatherer,
		fetcher:     storage.NewHTTPFetcher(0),
		clock:       clock.RealClock{},
		location:    location,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	e.GET("/api/time-image", s.timeImageHandler)
	e.GET("/api/preview/:key", s.previewHandler)
	e.GET("/api/preview/:key/export", s.previewExportHandler)
	e.GET("/api/preview/:key/face.png", s.previewFaceHandler)
	e.GET("/api/clock", s.clockHandler)
	e.GET("/api/clock.png", s.clockPNGHandler)
}

func (s *APIService) probeHandler(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "ok")
}

type timeImageQuery struct {
	Hour   int `query:"hour" validate:"min=0,max=23"`
	Minute int `query:"minute" validate:"min=0,max=59"`
}

// timeImageHandler answers getImageForTime: the live record for the bucket or null.
func (s *APIService) timeImageHandler(ctx echo.Context) error {
	var query timeImageQuery
	if err := echo.QueryParamsBinder(ctx).
		MustInt("hour", &query.Hour).
		MustInt("minute", &query.Minute).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := ctx.Validate(&query); err != nil {
		return err
	}

	image, err := s.coreService.ResolveLiveImage(ctx.Request().Context(), query.Hour, query.Minute)
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(http.StatusOK, image)
}

// previewHandler answers getPreviewImage: the row stored under the key or null.
func (s *APIService) previewHandler(ctx echo.Context) error {
	image, err := s.coreService.ResolvePreview(ctx.Request().Context(), ctx.Param("key"))
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(http.StatusOK, image)
}

func (s *APIService) previewExportHandler(ctx echo.Context) error {
	ed, err := s.previewEditor(ctx)
	if err != nil {
		return err
	}
	out, err := ed.ExportJSON()
	if err != nil {
		slog.Error("previewExportHandler: failed to export", "preview_key", ctx.Param("key"), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to export preview")
	}
	return ctx.Blob(http.StatusOK, mimeJSON, out)
}

// previewFaceHandler renders the preview at its edited time with seconds at zero.
func (s *APIService) previewFaceHandler(ctx echo.Context) error {
	ed, err := s.previewEditor(ctx)
	if err != nil {
		return err
	}
	size, err := s.faceSize(ctx)
	if err != nil {
		return err
	}

	v := ed.Values()
	now := s.clock.Now().In(s.location)
	at := time.Date(now.Year(), now.Month(), now.Day(), v.Hour, v.Minute, 0, 0, s.location)
	return s.renderFace(ctx, at, size, ed.Preview())
}

func (s *APIService) clockHandler(ctx echo.Context) error {
	setNoCache(ctx)
	return ctx.JSON(http.StatusOK, s.clockSource.Snapshot())
}

func (s *APIService) clockPNGHandler(ctx echo.Context) error {
	size, err := s.faceSize(ctx)
	if err != nil {
		return err
	}
	snapshot := s.clockSource.Snapshot()
	var image *database.TimeImage
	if snapshot.Image.State == core.StatePresent {
		image = snapshot.Image.Image
	}
	return s.renderFace(ctx, s.clock.Now().In(s.location), size, image)
}

func (s *APIService) previewEditor(ctx echo.Context) (*editor.Editor, error) {
	preview, err := s.coreService.ResolvePreview(ctx.Request().Context(), ctx.Param("key"))
	if err != nil {
		return nil, toHTTPError(err)
	}
	if preview == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "preview not found")
	}
	return EditorFromRequest(ctx, preview)
}

func (s *APIService) faceSize(ctx echo.Context) (int, error) {
	size := s.config.FaceSize
	if err := echo.QueryParamsBinder(ctx).Int("size", &size).BindError(); err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if size < render.MinSize || size > render.MaxSize {
		return 0, echo.NewHTTPError(http.StatusBadRequest, render.ErrInvalidSize.Error())
	}
	return size, nil
}

// renderFace draws the face with image as background. A background that cannot be fetched
// or decoded is logged and left out so the face itself still renders.
func (s *APIService) renderFace(ctx echo.Context, at time.Time, size int, image *database.TimeImage) error {
	style := render.StyleForTheme(s.config.Theme)
	placement := render.PlacementOf(image)

	background := s.fetchBackground(ctx.Request().Context(), image)
	png, err := render.RenderPNG(at, size, background, placement, style)
	if err != nil && background != nil {
		slog.Warn("renderFace: dropping undecodable background", "error", err)
		png, err = render.RenderPNG(at, size, nil, placement, style)
	}
	if err != nil {
		slog.Error("renderFace: failed to render clock face", "size", size, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render clock face")
	}

	setNoCache(ctx)
	return ctx.Blob(http.StatusOK, mimePNG, png)
}

func (s *APIService) fetchBackground(ctx context.Context, image *database.TimeImage) []byte {
	if image == nil || image.ImageURL == nil || *image.ImageURL == "" {
		return nil
	}
	data, err := s.fetcher.Fetch(ctx, *image.ImageURL)
	if err != nil {
		slog.Warn("fetchBackground: failed to fetch background image", "url", *image.ImageURL, "error", err)
		return nil
	}
	return data
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, core.ErrInvalidTime), errors.Is(err, core.ErrInvalidPreviewKey):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotUnique):
		return echo.NewHTTPError(http.StatusInternalServerError, "time image index returned more than one row").SetInternal(err)
	default:
		slog.Error("image lookup failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "image lookup failed").SetInternal(err)
	}
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
