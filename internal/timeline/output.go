package timeline

import (
	"encoding/json"
	"fmt"

	"github.com/go-openapi/jsonpointer"
)

// Output is one video output item of a JSON output list.
type Output struct {
	Name       string
	Type       string
	Descriptor Descriptor
	Path       string // shared memory path, when Type needs one
}

type fpsItem struct {
	Numerator   uint `json:"numerator"`
	Denominator uint `json:"denominator"`
}

type capabilitiesItem struct {
	Type   string  `json:"type"`
	Format string  `json:"format"`
	Width  uint    `json:"width"`
	Height uint    `json:"height"`
	FPS    fpsItem `json:"fps"`
}

type outputItem struct {
	Name         string           `json:"name"`
	Type         string           `json:"type,omitempty"`
	Capabilities capabilitiesItem `json:"capabilities"`
	Path         string           `json:"path,omitempty"`
}

func capsItem(d Descriptor) capabilitiesItem {
	return capabilitiesItem{
		Type:   d.MediaType,
		Format: d.PixelFormat,
		Width:  d.Width,
		Height: d.Height,
		FPS:    fpsItem{Numerator: d.FPSNum, Denominator: d.FPSDen},
	}
}

func (o outputItem) descriptor() Descriptor {
	return Descriptor{
		Name:        o.Name,
		MediaType:   o.Capabilities.Type,
		PixelFormat: o.Capabilities.Format,
		Width:       o.Capabilities.Width,
		Height:      o.Capabilities.Height,
		FPSNum:      o.Capabilities.FPS.Numerator,
		FPSDen:      o.Capabilities.FPS.Denominator,
	}
}

// ParseOutput decodes an output item from data. A non-empty pointer such as
// "/outputs/0" selects the item inside a larger document.
func ParseOutput(data []byte, pointer string) (Output, error) {
	if pointer != "" {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return Output{}, fmt.Errorf("parse output: %w", err)
		}
		p, err := jsonpointer.New(pointer)
		if err != nil {
			return Output{}, fmt.Errorf("parse output: pointer %q: %w", pointer, err)
		}
		node, _, err := p.Get(doc)
		if err != nil {
			return Output{}, fmt.Errorf("parse output: pointer %q: %w", pointer, err)
		}
		if data, err = json.Marshal(node); err != nil {
			return Output{}, fmt.Errorf("parse output: %w", err)
		}
	}

	var item outputItem
	if err := json.Unmarshal(data, &item); err != nil {
		return Output{}, fmt.Errorf("parse output: %w", err)
	}
	out := Output{Name: item.Name, Type: item.Type, Descriptor: item.descriptor(), Path: item.Path}
	if err := out.Descriptor.Validate(); err != nil {
		return Output{}, fmt.Errorf("parse output %q: %w", item.Name, err)
	}
	return out, nil
}

// MarshalJSON writes the output item shape read by ParseOutput.
func (o Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(outputItem{
		Name:         o.Name,
		Type:         o.Type,
		Capabilities: capsItem(o.Descriptor),
		Path:         o.Path,
	})
}
