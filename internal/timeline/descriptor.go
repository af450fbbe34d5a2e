package timeline

import (
	"encoding/json"
	"fmt"
	"time"

	"segment-timeline/internal/engine"
)

// CanonicalFormat is the pixel layout reference segments are converted to
// before their capabilities are read.
const CanonicalFormat = "I420"

// Descriptor is the capability set every segment of one timeline is built to
// match. It is created once per timeline and never mutated afterwards.
type Descriptor struct {
	Name        string
	MediaType   string
	PixelFormat string
	Width       uint
	Height      uint
	FPSNum      uint
	FPSDen      uint
}

// Validate checks the descriptor invariants.
func (d Descriptor) Validate() error {
	switch {
	case d.MediaType == "":
		return fmt.Errorf("%w: empty media type", ErrInvalidDescriptor)
	case d.PixelFormat == "":
		return fmt.Errorf("%w: empty pixel format", ErrInvalidDescriptor)
	case d.Width == 0 || d.Height == 0:
		return fmt.Errorf("%w: geometry %dx%d", ErrInvalidDescriptor, d.Width, d.Height)
	case d.FPSDen == 0:
		return fmt.Errorf("%w: frame rate %d/%d", ErrInvalidDescriptor, d.FPSNum, d.FPSDen)
	}
	return nil
}

// Caps renders the descriptor as engine caps. A variable frame rate leaves
// the framerate unconstrained.
func (d Descriptor) Caps() *engine.Caps {
	caps := engine.NewCaps(d.MediaType).
		Set("format", d.PixelFormat).
		Set("width", int(d.Width)).
		Set("height", int(d.Height))
	if d.FPSNum > 0 {
		caps.Set("framerate", engine.Fraction{Num: int(d.FPSNum), Den: int(d.FPSDen)})
	}
	return caps
}

// FrameDuration is the duration of one frame, or zero for a variable rate.
func (d Descriptor) FrameDuration() time.Duration {
	if d.FPSNum == 0 || d.FPSDen == 0 {
		return 0
	}
	return time.Duration(int64(time.Second) * int64(d.FPSDen) / int64(d.FPSNum))
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %s %dx%d@%d/%d", d.MediaType, d.PixelFormat, d.Width, d.Height, d.FPSNum, d.FPSDen)
}

// descriptorFromCaps reads the negotiated capabilities of a sink pad.
func descriptorFromCaps(name string, caps *engine.Caps) (Descriptor, error) {
	format, ok := caps.String("format")
	if !ok || format == "" {
		return Descriptor{}, ErrMissingFormat
	}
	w, okW := caps.Int("width")
	h, okH := caps.Int("height")
	if !okW || !okH || w <= 0 || h <= 0 {
		return Descriptor{}, ErrMissingGeometry
	}
	fr, ok := caps.Fraction("framerate")
	if !ok || fr.Den <= 0 || fr.Num < 0 {
		return Descriptor{}, ErrMissingFrameRate
	}
	return Descriptor{
		Name:        name,
		MediaType:   engine.MediaTypeRawVideo,
		PixelFormat: format,
		Width:       uint(w),
		Height:      uint(h),
		FPSNum:      uint(fr.Num),
		FPSDen:      uint(fr.Den),
	}, nil
}

// MarshalJSON writes the descriptor in output item form.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(outputItem{Name: d.Name, Capabilities: capsItem(d)})
}

// UnmarshalJSON reads the descriptor from output item form.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var item outputItem
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	*d = item.descriptor()
	return nil
}
