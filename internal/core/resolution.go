package core

import (
	"encoding/json"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
)

type ResolutionState int

const (
	// StateLoading means the lookup has not completed yet.
	StateLoading ResolutionState = iota
	// StateAbsent means the lookup completed and there is no image for the slot.
	StateAbsent
	// StatePresent means the lookup completed with an image.
	StatePresent
)

func (s ResolutionState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	default:
		return "loading"
	}
}

// Resolution is what the render layer knows about a slot's image.
type Resolution struct {
	State ResolutionState
	Image *database.TimeImage
}

func Loading() Resolution {
	return Resolution{State: StateLoading}
}

func Absent() Resolution {
	return Resolution{State: StateAbsent}
}

func Present(image *database.TimeImage) Resolution {
	return Resolution{State: StatePresent, Image: image}
}

// ResolutionOf maps a completed lookup onto Absent or Present.
func ResolutionOf(image *database.TimeImage) Resolution {
	if image == nil {
		return Absent()
	}
	return Present(image)
}

func (r Resolution) IsLoading() bool { return r.State == StateLoading }

// ImageURL returns the displayable URL or "" when there is nothing to draw.
func (r Resolution) ImageURL() string {
	if r.State != StatePresent || r.Image == nil || r.Image.ImageURL == nil {
		return ""
	}
	return *r.Image.ImageURL
}

type resolutionJSON struct {
	State string              `json:"state"`
	Image *database.TimeImage `json:"image,omitempty"`
}

func (r Resolution) MarshalJSON() ([]byte, error) {
	return json.Marshal(resolutionJSON{State: r.State.String(), Image: r.Image})
}

func (r *Resolution) UnmarshalJSON(data []byte) error {
	var raw resolutionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.State {
	case "present":
		*r = Present(raw.Image)
	case "absent":
		*r = Absent()
	default:
		*r = Loading()
	}
	return nil
}
