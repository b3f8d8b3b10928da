package database

import "time"

// TimeImage is a clock face background keyed by wall-clock slot or by preview key.
// Rows without a PreviewKey are live and eligible for clock display.
type TimeImage struct {
	ID         string    `json:"id" yaml:"-" db:"id"`
	Hour       int       `json:"hour" yaml:"hour" db:"hour"`
	Minute     int       `json:"minute" yaml:"minute" db:"minute"`
	PreviewKey *string   `json:"previewKey,omitempty" yaml:"previewKey,omitempty" db:"preview_key"`
	ImageURL   *string   `json:"imageUrl" yaml:"imageUrl,omitempty" db:"image_url"`
	StorageRef string    `json:"storageRef,omitempty" yaml:"storageRef,omitempty" db:"storage_ref"` // object key resolved into ImageURL on read
	Scale      float64   `json:"scale" yaml:"scale" db:"scale"`
	OffsetX    int       `json:"offsetX" yaml:"offsetX" db:"offset_x"`
	OffsetY    int       `json:"offsetY" yaml:"offsetY" db:"offset_y"`
	Credits    string    `json:"credits" yaml:"credits" db:"credits"`
	CreatedAt  time.Time `json:"createdAt" yaml:"-" db:"created_at"`
}

// IsPreview reports whether the row is a draft addressable only by its preview key.
func (t *TimeImage) IsPreview() bool {
	return t.PreviewKey != nil
}

// Clone returns a deep copy so callers can rewrite fields without touching cached rows.
func (t *TimeImage) Clone() *TimeImage {
	if t == nil {
		return nil
	}
	c := *t
	if t.PreviewKey != nil {
		key := *t.PreviewKey
		c.PreviewKey = &key
	}
	if t.ImageURL != nil {
		u := *t.ImageURL
		c.ImageURL = &u
	}
	return &c
}
