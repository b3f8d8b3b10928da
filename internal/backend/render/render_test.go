package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
	"github.com/srwiley/oksvg"
)

func at(h, m, s int) time.Time {
	return time.Date(2026, 10, 15, h, m, s, 0, time.UTC)
}

func TestHandAngles(t *testing.T) {
	tests := []struct {
		name                 string
		t                    time.Time
		hour, minute, second float64
	}{
		{"midnight", at(0, 0, 0), 0, 0, 0},
		{"three o'clock", at(3, 0, 0), 90, 0, 0},
		{"half past noon with seconds", at(12, 30, 15), 15, 181.5, 90},
		{"afternoon wraps to twelve hours", at(21, 45, 30), 292.5, 273, 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m, s := HandAngles(tt.t)
			if !near(h, tt.hour) || !near(m, tt.minute) || !near(s, tt.second) {
				t.Errorf("got (%v, %v, %v), want (%v, %v, %v)", h, m, s, tt.hour, tt.minute, tt.second)
			}
		})
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFormatDigital(t *testing.T) {
	if got := FormatDigital(at(7, 5, 9)); got != "07:05:09" {
		t.Errorf("expected 07:05:09, got %s", got)
	}
	if got := FormatDigital(at(23, 59, 59)); got != "23:59:59" {
		t.Errorf("expected 23:59:59, got %s", got)
	}
}

func TestClockFaceSVG(t *testing.T) {
	svg := ClockFaceSVG(at(3, 15, 0), 500, LightStyle)

	if _, err := oksvg.ReadIconStream(bytes.NewReader(svg)); err != nil {
		t.Fatalf("generated SVG does not parse: %v", err)
	}
	s := string(svg)
	if n := strings.Count(s, "<line"); n != 3 {
		t.Errorf("expected 3 hands, got %d", n)
	}
	// minute hand points at three o'clock
	if !strings.Contains(s, `x2="475.00" y2="250.00"`) {
		t.Errorf("minute hand endpoint missing from SVG:\n%s", s)
	}
	if !strings.Contains(s, `width="500" height="500"`) {
		t.Error("SVG must carry explicit dimensions")
	}
}

func TestStyleForTheme(t *testing.T) {
	if StyleForTheme("dark") != DarkStyle {
		t.Error("dark theme should use the dark style")
	}
	if StyleForTheme("system") != LightStyle || StyleForTheme("light") != LightStyle {
		t.Error("light and system themes should use the light style")
	}
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func renderAndDecode(t *testing.T, background []byte, placement Placement) image.Image {
	t.Helper()
	out, err := RenderPNG(at(12, 0, 0), 500, background, placement, LightStyle)
	if err != nil {
		t.Fatalf("RenderPNG error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 500 || b.Dy() != 500 {
		t.Fatalf("expected 500x500, got %v", b)
	}
	return img
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func isBlue(c color.RGBA) bool  { return c.B > 240 && c.R < 15 && c.G < 15 }
func isWhite(c color.RGBA) bool { return c.R > 240 && c.G > 240 && c.B > 240 }

func TestRenderPNG_WithoutBackground(t *testing.T) {
	img := renderAndDecode(t, nil, Placement{Scale: 1})

	if c := rgbaAt(img, 0, 0); c.A != 0 {
		t.Errorf("corner outside the dial should be transparent, got %v", c)
	}
	if c := rgbaAt(img, 150, 250); !isWhite(c) {
		t.Errorf("dial should be white, got %v", c)
	}
	if c := rgbaAt(img, 250, 250); c.R < 200 || c.G > 60 {
		t.Errorf("center dot should be red, got %v", c)
	}
}

func TestRenderPNG_BackgroundFillsDial(t *testing.T) {
	blue := solidPNG(t, 100, 100, color.RGBA{0, 0, 255, 255})
	img := renderAndDecode(t, blue, Placement{Scale: 1})

	if c := rgbaAt(img, 150, 250); !isBlue(c) {
		t.Errorf("background should cover the dial, got %v", c)
	}
	if c := rgbaAt(img, 0, 0); c.A != 0 {
		t.Errorf("background must be clipped to the dial, got %v", c)
	}
}

func TestRenderPNG_ScaleAndOffset(t *testing.T) {
	blue := solidPNG(t, 100, 100, color.RGBA{0, 0, 255, 255})

	centered := renderAndDecode(t, blue, Placement{Scale: 0.2})
	if c := rgbaAt(centered, 260, 290); !isBlue(c) {
		t.Errorf("scaled background should sit at the center, got %v", c)
	}
	if c := rgbaAt(centered, 150, 250); !isWhite(c) {
		t.Errorf("scaled background should leave the rest of the dial, got %v", c)
	}

	shifted := renderAndDecode(t, blue, Placement{Scale: 0.2, OffsetX: 150})
	if c := rgbaAt(shifted, 400, 250); !isBlue(c) {
		t.Errorf("offset background should move right, got %v", c)
	}
	if c := rgbaAt(shifted, 260, 290); !isWhite(c) {
		t.Errorf("offset background should leave the center, got %v", c)
	}
}

func TestRenderPNG_Errors(t *testing.T) {
	if _, err := RenderPNG(at(1, 2, 3), 10, nil, Placement{Scale: 1}, LightStyle); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
	if _, err := RenderPNG(at(1, 2, 3), 200, []byte("not an image"), Placement{Scale: 1}, LightStyle); err == nil {
		t.Error("expected decode error for garbage background")
	}
}

// withDeclaredSize rewrites the IHDR dimensions of an encoded PNG without adding pixel data.
func withDeclaredSize(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	// 8-byte signature, 4-byte length, "IHDR", then width and height.
	if string(out[12:16]) != "IHDR" {
		t.Fatalf("unexpected PNG layout")
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestRenderPNG_RejectsOversizedBackground(t *testing.T) {
	huge := withDeclaredSize(t, solidPNG(t, 4, 4, color.White), 100_000, 100_000)

	_, err := RenderPNG(at(1, 2, 3), 200, huge, Placement{Scale: 1}, LightStyle)
	if !errors.Is(err, ErrBackgroundTooLarge) {
		t.Fatalf("expected ErrBackgroundTooLarge, got %v", err)
	}

	fits := solidPNG(t, 40, 40, color.RGBA{B: 255, A: 255})
	if _, err := RenderPNG(at(1, 2, 3), 200, fits, Placement{Scale: 1}, LightStyle); err != nil {
		t.Fatalf("expected a small background to render, got %v", err)
	}
}

func TestPlacementOf(t *testing.T) {
	if p := PlacementOf(nil); p.Scale != 1 {
		t.Errorf("expected default scale 1, got %v", p.Scale)
	}
	p := PlacementOf(&database.TimeImage{Scale: 1.5, OffsetX: -3, OffsetY: 7})
	if p != (Placement{Scale: 1.5, OffsetX: -3, OffsetY: 7}) {
		t.Errorf("unexpected placement %+v", p)
	}
}
