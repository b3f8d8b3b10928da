package editor

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
)

func demoPreview() *database.TimeImage {
	key := "demo"
	url := "https://example.com/bunny.png?w=500&h=500"
	return &database.TimeImage{
		ID:         "abc",
		Hour:       14,
		Minute:     30,
		PreviewKey: &key,
		ImageURL:   &url,
		Scale:      1.2345,
		OffsetX:    -12,
		OffsetY:    40,
		Credits:    "https://example.com/photographer",
	}
}

func TestNew_RequiresPreview(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoPreview) {
		t.Fatalf("expected ErrNoPreview, got %v", err)
	}
}

func TestNew_SeedsValues(t *testing.T) {
	e, err := New(demoPreview())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	want := Values{Hour: 14, Minute: 30, Scale: 1.2345, OffsetX: -12, OffsetY: 40}
	if got := e.Values(); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestSetters_ClampToSliderRanges(t *testing.T) {
	e, _ := New(demoPreview())

	cases := []struct {
		name  string
		apply func()
		check func(Values) bool
	}{
		{"scale below", func() { e.SetScale(0.01) }, func(v Values) bool { return v.Scale == MinScale }},
		{"scale above", func() { e.SetScale(9) }, func(v Values) bool { return v.Scale == MaxScale }},
		{"scale within", func() { e.SetScale(0.75) }, func(v Values) bool { return v.Scale == 0.75 }},
		{"offsetX below", func() { e.SetOffsetX(-500) }, func(v Values) bool { return v.OffsetX == MinOffset }},
		{"offsetY above", func() { e.SetOffsetY(151) }, func(v Values) bool { return v.OffsetY == MaxOffset }},
		{"hour above", func() { e.SetHour(24) }, func(v Values) bool { return v.Hour == 23 }},
		{"minute below", func() { e.SetMinute(-1) }, func(v Values) bool { return v.Minute == 0 }},
		{"minute within", func() { e.SetMinute(47) }, func(v Values) bool { return v.Minute == 47 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.apply()
			if !tc.check(e.Values()) {
				t.Errorf("unexpected values %+v", e.Values())
			}
		})
	}
}

func TestExportJSON_Format(t *testing.T) {
	e, _ := New(demoPreview())

	out, err := e.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON error: %v", err)
	}
	want := `{
  "hour": 14,
  "minute": 30,
  "imageUrl": "https://example.com/bunny.png?w=500&h=500",
  "credits": "https://example.com/photographer",
  "scale": 1.23,
  "offsetX": -12,
  "offsetY": 40
}`
	if string(out) != want {
		t.Fatalf("unexpected export:\n%s\nwant:\n%s", out, want)
	}
	if strings.Contains(string(out), "previewKey") {
		t.Fatal("export must not contain the preview key")
	}
}

func TestExportJSON_NullImageURL(t *testing.T) {
	p := demoPreview()
	p.ImageURL = nil
	e, _ := New(p)

	out, err := e.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON error: %v", err)
	}
	if !strings.Contains(string(out), `"imageUrl": null`) {
		t.Fatalf("expected null imageUrl, got:\n%s", out)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	source, _ := New(demoPreview())
	source.Apply(Values{Hour: 9, Minute: 20, Scale: 0.876, OffsetX: 150, OffsetY: -3})

	out, err := source.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON error: %v", err)
	}

	target, _ := New(demoPreview())
	if err := target.ImportJSON(out); err != nil {
		t.Fatalf("ImportJSON error: %v", err)
	}

	// scale is exported with two decimals
	want := Values{Hour: 9, Minute: 20, Scale: 0.88, OffsetX: 150, OffsetY: -3}
	if got := target.Values(); got != want {
		t.Fatalf("expected %+v after round trip, got %+v", want, got)
	}

	again, err := target.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON error: %v", err)
	}
	if string(again) != string(out) {
		t.Fatalf("second export differs:\n%s\n%s", out, again)
	}
}

func TestImportJSON_Invalid(t *testing.T) {
	e, _ := New(demoPreview())
	before := e.Values()
	if err := e.ImportJSON([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
	if e.Values() != before {
		t.Fatal("failed import must not change values")
	}
}

func TestPreview_AppliesEditsWithoutTouchingSeed(t *testing.T) {
	seed := demoPreview()
	e, _ := New(seed)
	e.SetScale(2)
	e.SetHour(7)

	p := e.Preview()
	if p.Scale != 2 || p.Hour != 7 {
		t.Fatalf("preview did not carry edits: %+v", p)
	}
	if seed.Scale != 1.2345 || seed.Hour != 14 {
		t.Fatalf("seed record was modified: %+v", seed)
	}
	if p.PreviewKey == nil || *p.PreviewKey != "demo" {
		t.Fatal("preview record lost its key")
	}
}

func TestDocument_MatchesRecordFieldNames(t *testing.T) {
	e, _ := New(demoPreview())
	raw, err := json.Marshal(e.Document())
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	for _, name := range []string{"hour", "minute", "imageUrl", "credits", "scale", "offsetX", "offsetY"} {
		if _, ok := fields[name]; !ok {
			t.Errorf("missing field %q", name)
		}
	}
	if len(fields) != 7 {
		t.Errorf("expected 7 fields, got %d", len(fields))
	}
}
