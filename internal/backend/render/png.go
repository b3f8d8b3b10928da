package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	MinSize = 64
	MaxSize = 4096

	// MaxBackgroundPixels bounds the decoded background; a few bytes of header can declare
	// dimensions that would need gigabytes once decoded.
	MaxBackgroundPixels = 40_000_000
)

var (
	ErrInvalidSize        = fmt.Errorf("size must be between %d and %d", MinSize, MaxSize)
	ErrBackgroundTooLarge = fmt.Errorf("background image exceeds %d pixels", MaxBackgroundPixels)
)

// Placement positions the background image on the face.
type Placement struct {
	Scale   float64
	OffsetX int
	OffsetY int
}

func PlacementOf(img *database.TimeImage) Placement {
	if img == nil {
		return Placement{Scale: 1}
	}
	return Placement{Scale: img.Scale, OffsetX: img.OffsetX, OffsetY: img.OffsetY}
}

// RenderPNG draws the face at t. A non-empty background is fitted inside the face, scaled
// around the center, shifted by the placement offsets and clipped to the dial.
func RenderPNG(t time.Time, size int, background []byte, placement Placement, style Style) ([]byte, error) {
	if size < MinSize || size > MaxSize {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSize, size)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	if err := rasterize(dst, dialSVG(size, style)); err != nil {
		return nil, err
	}

	if len(background) > 0 {
		if err := checkBackgroundBounds(background); err != nil {
			return nil, err
		}
		src, format, err := image.Decode(bytes.NewReader(background))
		if err != nil {
			return nil, fmt.Errorf("failed to decode background image: %w", err)
		}
		slog.Debug("render: drawing background", "format", format, "width", src.Bounds().Dx(), "height", src.Bounds().Dy())
		drawBackground(dst, src, placement)
	}

	if err := rasterize(dst, handsSVG(t, size, style)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(size * size)
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode clock face as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func checkBackgroundBounds(background []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(background))
	if err != nil {
		return fmt.Errorf("failed to read background image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxBackgroundPixels {
		return fmt.Errorf("%w: %s is %dx%d", ErrBackgroundTooLarge, format, cfg.Width, cfg.Height)
	}
	return nil
}

func rasterize(dst *image.RGBA, svg []byte) error {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return fmt.Errorf("failed to parse SVG: %w", err)
	}
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	icon.SetTarget(0, 0, float64(w), float64(h))

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return nil
}

func drawBackground(dst *image.RGBA, src image.Image, placement Placement) {
	size := dst.Bounds().Dx()
	scale := placement.Scale
	if scale <= 0 {
		scale = 1
	}
	k := float64(size) / ReferenceSize

	fitW, fitH := containDimensions(src.Bounds().Dx(), src.Bounds().Dy(), size, size)
	w := int(float64(fitW) * scale)
	h := int(float64(fitH) * scale)
	if w <= 0 || h <= 0 {
		return
	}

	x0 := (size-w)/2 + int(float64(placement.OffsetX)*k)
	y0 := (size-h)/2 + int(float64(placement.OffsetY)*k)
	rect := image.Rect(x0, y0, x0+w, y0+h)

	mask := &circleMask{center: image.Pt(size/2, size/2), radius: size / 2}
	xdraw.CatmullRom.Scale(dst, rect, src, src.Bounds(), xdraw.Over, &xdraw.Options{DstMask: mask})
}

// containDimensions fits a w×h image inside maxW×maxH keeping its aspect ratio.
func containDimensions(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	srcAspect := float64(w) / float64(h)
	dstAspect := float64(maxW) / float64(maxH)
	if srcAspect > dstAspect {
		return maxW, int(float64(maxW) / srcAspect)
	}
	return int(float64(maxH) * srcAspect), maxH
}

type circleMask struct {
	center image.Point
	radius int
}

func (m *circleMask) ColorModel() color.Model { return color.AlphaModel }

func (m *circleMask) Bounds() image.Rectangle {
	return image.Rect(m.center.X-m.radius, m.center.Y-m.radius, m.center.X+m.radius, m.center.Y+m.radius)
}

func (m *circleMask) At(x, y int) color.Color {
	dx := float64(x-m.center.X) + 0.5
	dy := float64(y-m.center.Y) + 0.5
	r := float64(m.radius)
	if dx*dx+dy*dy <= r*r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}
