package patch

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/menta2k/image-tiler/pkg/types"
)

// ParsePaddingValue turns the configured padding into a colour.
// A hex string such as "#7f7f7f" wins over values. One value is a grey
// level, three values are R, G, B. No value means black.
func ParsePaddingValue(values []int, hex string) (color.Color, error) {
	if hex != "" {
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, types.NewConfigError("padding.hex", "%v", err)
		}
		r, g, b := c.RGB255()
		return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
	}

	for _, v := range values {
		if v < 0 || v > 255 {
			return nil, types.NewConfigError("padding.value", "channel value %d out of range 0-255", v)
		}
	}

	switch len(values) {
	case 0:
		return color.NRGBA{A: 255}, nil
	case 1:
		v := uint8(values[0])
		return color.NRGBA{R: v, G: v, B: v, A: 255}, nil
	case 3:
		return color.NRGBA{R: uint8(values[0]), G: uint8(values[1]), B: uint8(values[2]), A: 255}, nil
	default:
		return nil, types.NewConfigError("padding.value", "expected 1 or 3 values, got %d", len(values))
	}
}
