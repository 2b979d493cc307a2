// Package camera implements the per-source encoder workers and the
// publisher fan-out described in §4.6: a bound publisher socket (realized
// here as a websocket broadcast hub) plus, per configured source, an
// encoder worker with a one-slot buffer and a condition variable.
package camera

import (
	"image"
	"image/color"
	"strings"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// Frame is the decoded camera-frame envelope (§3 "Camera frame").
type Frame struct {
	Camera      string
	TimestampS  float64
	Encoding    string
	Width       uint16
	Height      uint16
	Quality     uint8
	Data        []byte
}

// ToValue renders Frame as the wire envelope described in §3.
func (f Frame) ToValue() wire.Value {
	return wire.Map(map[string]wire.Value{
		"camera":    wire.String(f.Camera),
		"timestamp": wire.Float(f.TimestampS),
		"encoding":  wire.String(f.Encoding),
		"width":     wire.Int(int64(f.Width)),
		"height":    wire.Int(int64(f.Height)),
		"quality":   wire.Int(int64(f.Quality)),
		"data":      wire.Bytes(f.Data),
	})
}

// lookupPath resolves a dotted path (e.g. "robot.cameras.left") into a
// nested observation map, supporting the worker's "nested frame lookup"
// requirement (§4.6).
func lookupPath(obs map[string]wire.Value, path string) (wire.Value, bool) {
	return wire.MapGetPath(wire.Map(obs), strings.Split(path, "."))
}

// coerceImage applies the frame-shape coercion rules (§4.6): grayscale 2-D
// arrays become single-channel images, RGB 3-D arrays pass through (with a
// red/blue channel swap so the wire format matches the OpenCV-style BGR
// byte order many robot camera drivers emit), and any other rank or dtype
// is rejected.
func coerceImage(arr wire.NdArray) (image.Image, bool) {
	if arr.DType != wire.Uint8 {
		return nil, false
	}
	switch len(arr.Shape) {
	case 2:
		h, w := arr.Shape[0], arr.Shape[1]
		img := image.NewGray(image.Rect(0, 0, w, h))
		copy(img.Pix, arr.Data)
		return img, true
	case 3:
		h, w, c := arr.Shape[0], arr.Shape[1], arr.Shape[2]
		switch c {
		case 1:
			img := image.NewGray(image.Rect(0, 0, w, h))
			copy(img.Pix, arr.Data)
			return img, true
		case 3:
			img := image.NewNRGBA(image.Rect(0, 0, w, h))
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					off := (y*w + x) * 3
					r, g, b := arr.Data[off], arr.Data[off+1], arr.Data[off+2]
					// published as BGR: swap red and blue before encoding.
					img.Set(x, y, color.NRGBA{R: b, G: g, B: r, A: 255})
				}
			}
			return img, true
		default:
			return nil, false
		}
	default:
		return nil, false
	}
}
