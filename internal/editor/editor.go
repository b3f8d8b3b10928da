// Package editor holds the locally edited placement of a preview image and turns it into the
// record JSON that gets pasted into the store when the image is published.
package editor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
)

const (
	MinScale  = 0.1
	MaxScale  = 2.5
	MinOffset = -150
	MaxOffset = 150
)

var ErrNoPreview = errors.New("editor needs a preview record")

// Values are the editable fields of a preview record.
type Values struct {
	Hour    int     `json:"hour" query:"hour"`
	Minute  int     `json:"minute" query:"minute"`
	Scale   float64 `json:"scale" query:"scale"`
	OffsetX int     `json:"offsetX" query:"offsetX"`
	OffsetY int     `json:"offsetY" query:"offsetY"`
}

// Document is the exported record. Field order is the order the JSON keys are written in.
type Document struct {
	Hour     int     `json:"hour"`
	Minute   int     `json:"minute"`
	ImageURL *string `json:"imageUrl"`
	Credits  string  `json:"credits"`
	Scale    float64 `json:"scale"`
	OffsetX  int     `json:"offsetX"`
	OffsetY  int     `json:"offsetY"`
}

type Editor struct {
	preview *database.TimeImage
	values  Values
}

// New seeds an editor from a resolved preview record. The seeded values are taken as stored.
func New(preview *database.TimeImage) (*Editor, error) {
	if preview == nil {
		return nil, ErrNoPreview
	}
	return &Editor{
		preview: preview.Clone(),
		values: Values{
			Hour:    preview.Hour,
			Minute:  preview.Minute,
			Scale:   preview.Scale,
			OffsetX: preview.OffsetX,
			OffsetY: preview.OffsetY,
		},
	}, nil
}

func (e *Editor) Values() Values {
	return e.values
}

func (e *Editor) SetHour(hour int)      { e.values.Hour = clampInt(hour, 0, 23) }
func (e *Editor) SetMinute(minute int)  { e.values.Minute = clampInt(minute, 0, 59) }
func (e *Editor) SetOffsetX(offset int) { e.values.OffsetX = clampInt(offset, MinOffset, MaxOffset) }
func (e *Editor) SetOffsetY(offset int) { e.values.OffsetY = clampInt(offset, MinOffset, MaxOffset) }

func (e *Editor) SetScale(scale float64) {
	if math.IsNaN(scale) {
		return
	}
	e.values.Scale = math.Min(math.Max(scale, MinScale), MaxScale)
}

// Apply runs every field of v through its setter.
func (e *Editor) Apply(v Values) {
	e.SetHour(v.Hour)
	e.SetMinute(v.Minute)
	e.SetScale(v.Scale)
	e.SetOffsetX(v.OffsetX)
	e.SetOffsetY(v.OffsetY)
}

// Preview returns the preview record with the edited values applied, for rendering.
func (e *Editor) Preview() *database.TimeImage {
	out := e.preview.Clone()
	out.Hour = e.values.Hour
	out.Minute = e.values.Minute
	out.Scale = e.values.Scale
	out.OffsetX = e.values.OffsetX
	out.OffsetY = e.values.OffsetY
	return out
}

func (e *Editor) Document() Document {
	return Document{
		Hour:     e.values.Hour,
		Minute:   e.values.Minute,
		ImageURL: e.preview.ImageURL,
		Credits:  e.preview.Credits,
		Scale:    RoundScale(e.values.Scale),
		OffsetX:  e.values.OffsetX,
		OffsetY:  e.values.OffsetY,
	}
}

// ExportJSON writes the document indented by two spaces. The preview key is never included.
func (e *Editor) ExportJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e.Document()); err != nil {
		return nil, fmt.Errorf("failed to encode editor document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ImportJSON re-seeds the editable values from an exported document.
func (e *Editor) ImportJSON(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode editor document: %w", err)
	}
	e.Apply(Values{
		Hour:    doc.Hour,
		Minute:  doc.Minute,
		Scale:   doc.Scale,
		OffsetX: doc.OffsetX,
		OffsetY: doc.OffsetY,
	})
	return nil
}

// RoundScale rounds to two decimals, the precision the exported record carries.
func RoundScale(scale float64) float64 {
	return math.Round(scale*100) / 100
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
