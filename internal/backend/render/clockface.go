// Package render draws the analog clock face and the digital readout.
package render

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ReferenceSize is the face diameter that stored pixel offsets are measured against.
const ReferenceSize = 500

type Style struct {
	Face       string
	Rim        string
	HourHand   string
	MinuteHand string
	SecondHand string
	CenterDot  string
}

var (
	LightStyle = Style{
		Face:       "#ffffff",
		Rim:        "#1f2937",
		HourHand:   "#111827",
		MinuteHand: "#374151",
		SecondHand: "#dc2626",
		CenterDot:  "#dc2626",
	}
	DarkStyle = Style{
		Face:       "#1f2937",
		Rim:        "#d1d5db",
		HourHand:   "#e5e7eb",
		MinuteHand: "#9ca3af",
		SecondHand: "#dc2626",
		CenterDot:  "#dc2626",
	}
)

// StyleForTheme picks the face colors for a configured theme. "system" renders light since
// a server-side image has no viewer preference to follow.
func StyleForTheme(theme string) Style {
	if theme == "dark" {
		return DarkStyle
	}
	return LightStyle
}

// HandAngles returns the clockwise rotation from twelve o'clock, in degrees, of each hand.
func HandAngles(t time.Time) (hour, minute, second float64) {
	s := float64(t.Second())
	m := float64(t.Minute())
	h := float64(t.Hour() % 12)

	second = s / 60 * 360
	minute = (m + s/60) / 60 * 360
	hour = (h + m/60) / 12 * 360
	return hour, minute, second
}

// FormatDigital formats t as HH:MM:SS.
func FormatDigital(t time.Time) string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

type hand struct {
	angle  float64
	length float64 // fraction of the face diameter
	width  float64 // pixels at ReferenceSize
	color  string
}

// ClockFaceSVG renders a complete face: the filled dial, rim, three hands and center dot.
func ClockFaceSVG(t time.Time, size int, style Style) []byte {
	var b strings.Builder
	openSVG(&b, size)
	writeDial(&b, size, style)
	writeHands(&b, t, size, style)
	b.WriteString("</svg>")
	return []byte(b.String())
}

// dialSVG is the filled face alone; handsSVG is everything drawn above the background image.
func dialSVG(size int, style Style) []byte {
	var b strings.Builder
	openSVG(&b, size)
	writeDial(&b, size, style)
	b.WriteString("</svg>")
	return []byte(b.String())
}

func handsSVG(t time.Time, size int, style Style) []byte {
	var b strings.Builder
	openSVG(&b, size)
	writeHands(&b, t, size, style)
	b.WriteString("</svg>")
	return []byte(b.String())
}

func openSVG(b *strings.Builder, size int) {
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, size, size, size, size)
}

func writeDial(b *strings.Builder, size int, style Style) {
	c := float64(size) / 2
	fmt.Fprintf(b, `<circle cx="%.2f" cy="%.2f" r="%.2f" fill="%s"/>`, c, c, c, style.Face)
}

func writeHands(b *strings.Builder, t time.Time, size int, style Style) {
	c := float64(size) / 2
	k := float64(size) / ReferenceSize
	hourAngle, minuteAngle, secondAngle := HandAngles(t)

	rimWidth := 4 * k
	fmt.Fprintf(b, `<circle cx="%.2f" cy="%.2f" r="%.2f" fill="none" stroke="%s" stroke-width="%.2f"/>`,
		c, c, c-rimWidth/2, style.Rim, rimWidth)

	for _, h := range []hand{
		{angle: hourAngle, length: 0.35, width: 8, color: style.HourHand},
		{angle: minuteAngle, length: 0.45, width: 6, color: style.MinuteHand},
		{angle: secondAngle, length: 0.48, width: 4, color: style.SecondHand},
	} {
		rad := h.angle * math.Pi / 180
		l := h.length * float64(size)
		x2 := c + l*math.Sin(rad)
		y2 := c - l*math.Cos(rad)
		fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="%.2f" stroke-linecap="round"/>`,
			c, c, x2, y2, h.color, h.width*k)
	}

	fmt.Fprintf(b, `<circle cx="%.2f" cy="%.2f" r="%.2f" fill="%s"/>`, c, c, 8*k, style.CenterDot)
}
