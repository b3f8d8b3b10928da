package backend

import (
	"net/http"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
	"github.com/jo-hoe/bunnyclock/internal/editor"
	"github.com/labstack/echo/v4"
)

type editorQuery struct {
	Hour    int     `query:"hour" validate:"min=0,max=23"`
	Minute  int     `query:"minute" validate:"min=0,max=59"`
	Scale   float64 `query:"scale" validate:"gt=0"`
	OffsetX int     `query:"offsetX"`
	OffsetY int     `query:"offsetY"`
}

// EditorFromRequest seeds an editor from preview and applies the slider values found in the
// query string. Missing parameters keep the seeded value; offsets and scale are clamped.
func EditorFromRequest(ctx echo.Context, preview *database.TimeImage) (*editor.Editor, error) {
	ed, err := editor.New(preview)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	query := editorQuery(ed.Values())
	params := ctx.QueryParams()
	if !params.Has("hour") && !params.Has("minute") && !params.Has("scale") && !params.Has("offsetX") && !params.Has("offsetY") {
		return ed, nil
	}

	if err := echo.QueryParamsBinder(ctx).
		Int("hour", &query.Hour).
		Int("minute", &query.Minute).
		Float64("scale", &query.Scale).
		Int("offsetX", &query.OffsetX).
		Int("offsetY", &query.OffsetY).
		BindError(); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := ctx.Validate(&query); err != nil {
		return nil, err
	}
	ed.Apply(editor.Values(query))
	return ed, nil
}
