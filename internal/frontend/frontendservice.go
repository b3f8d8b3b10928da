package frontend

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/bunnyclock/internal/backend"
	"github.com/jo-hoe/bunnyclock/internal/backend/render"
	"github.com/jo-hoe/bunnyclock/internal/core"
	"github.com/jo-hoe/bunnyclock/internal/editor"
	"github.com/labstack/echo/v4"
	"k8s.io/utils/clock"
)

const (
	MainPageName    = "index.html"
	PreviewPageName = "preview.html"
)

type FrontendService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
	clockSource backend.ClockSource
	hub         *Hub
	clock       clock.PassiveClock
	location    *time.Location
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService, clockSource backend.ClockSource, hub *Hub) *FrontendService {
	location, err := config.Location()
	if err != nil {
		location = time.Local
	}
	return &FrontendService{
		config:      config,
		coreService: coreService,
		clockSource: clockSource,
		hub:         hub,
		clock:       clock.RealClock{},
		location:    location,
	}
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = NewTemplate()

	e.GET("/", service.indexHandler)
	e.GET("/preview/:key", service.previewHandler)
	e.GET("/ws", service.wsHandler)

	e.GET("/icon.svg", service.assetHandler("views/icon.svg", "image/svg+xml"))
	e.GET("/assets/style.css", service.assetHandler("views/style.css", "text/css; charset=utf-8"))
	e.GET("/assets/clock.js", service.assetHandler("views/clock.js", "text/javascript; charset=utf-8"))
}

type clockPage struct {
	Theme              string
	Time               string
	HourAngle          float64
	MinuteAngle        float64
	SecondAngle        float64
	Loading            bool
	ImageURL           string
	Scale              float64
	OffsetX            int
	OffsetY            int
	Credits            string
	CreditsURL         string
	FallbackCreditText string
	HelpLinks          []core.HelpLink
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	now := service.clock.Now().In(service.location)
	snapshot := service.clockSource.Snapshot()
	hourAngle, minuteAngle, secondAngle := render.HandAngles(now)

	page := clockPage{
		Theme:              service.config.Theme,
		Time:               render.FormatDigital(now),
		HourAngle:          hourAngle,
		MinuteAngle:        minuteAngle,
		SecondAngle:        secondAngle,
		Loading:            snapshot.Image.IsLoading(),
		ImageURL:           snapshot.Image.ImageURL(),
		Scale:              1,
		FallbackCreditText: service.config.FallbackCreditText,
		HelpLinks:          service.config.HelpLinks,
	}
	if image := snapshot.Image.Image; image != nil {
		page.Scale = image.Scale
		page.OffsetX = image.OffsetX
		page.OffsetY = image.OffsetY
		page.Credits = image.Credits
		page.CreditsURL = creditsLink(image.Credits)
	}

	setNoCache(ctx)
	return ctx.Render(http.StatusOK, MainPageName, page)
}

type previewPage struct {
	Theme      string
	Key        string
	NotFound   bool
	Time       string
	Values     editor.Values
	ScaleLabel string
	ExportJSON string
	FaceURL    string
	FaceSize   int
	MinScale   float64
	MaxScale   float64
	MinOffset  int
	MaxOffset  int
}

func (service *FrontendService) previewHandler(ctx echo.Context) error {
	key := ctx.Param("key")
	page := previewPage{
		Theme:     service.config.Theme,
		Key:       key,
		FaceSize:  service.config.FaceSize,
		MinScale:  editor.MinScale,
		MaxScale:  editor.MaxScale,
		MinOffset: editor.MinOffset,
		MaxOffset: editor.MaxOffset,
	}

	preview, err := service.coreService.ResolvePreview(ctx.Request().Context(), key)
	if err != nil {
		slog.Error("previewHandler: failed to resolve preview", "preview_key", key, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load preview")
	}
	if preview == nil {
		page.NotFound = true
		return ctx.Render(http.StatusNotFound, PreviewPageName, page)
	}

	ed, err := backend.EditorFromRequest(ctx, preview)
	if err != nil {
		return err
	}
	exported, err := ed.ExportJSON()
	if err != nil {
		slog.Error("previewHandler: failed to export preview", "preview_key", key, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to export preview")
	}

	v := ed.Values()
	page.Values = v
	page.ScaleLabel = fmt.Sprintf("%.2f", v.Scale)
	page.Time = fmt.Sprintf("%02d:%02d:00", v.Hour, v.Minute)
	page.ExportJSON = string(exported)
	page.FaceURL = previewFaceURL(key, v)

	setNoCache(ctx)
	return ctx.Render(http.StatusOK, PreviewPageName, page)
}

// wsHandler upgrades the connection and keeps it until the client leaves. The current
// snapshot is sent first so a fresh page never waits for the next swap.
func (service *FrontendService) wsHandler(ctx echo.Context) error {
	conn, err := upgrade(ctx.Response(), ctx.Request())
	if err != nil {
		slog.Warn("wsHandler: upgrade failed", "error", err)
		return nil
	}
	service.hub.Serve(conn, encodeImage(service.clockSource.Snapshot()))
	return nil
}

func (service *FrontendService) assetHandler(name, contentType string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		data, err := assetsFS.ReadFile(name)
		if err != nil {
			slog.Error("assetHandler: failed to read asset", "asset", name, "status", http.StatusInternalServerError, "error", err)
			return ctx.String(http.StatusInternalServerError, "Failed to load asset")
		}
		ctx.Response().Header().Set("Cache-Control", "public, max-age=3600")
		return ctx.Blob(http.StatusOK, contentType, data)
	}
}

func previewFaceURL(key string, v editor.Values) string {
	q := url.Values{}
	q.Set("hour", fmt.Sprint(v.Hour))
	q.Set("minute", fmt.Sprint(v.Minute))
	q.Set("scale", fmt.Sprint(v.Scale))
	q.Set("offsetX", fmt.Sprint(v.OffsetX))
	q.Set("offsetY", fmt.Sprint(v.OffsetY))
	return "/api/preview/" + url.PathEscape(key) + "/face.png?" + q.Encode()
}

// creditsLink returns credits when it is an absolute http(s) URL, otherwise "".
func creditsLink(credits string) string {
	credits = strings.TrimSpace(credits)
	u, err := url.Parse(credits)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return credits
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
