package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType enumerates the numeric-array element types the codec round-trips
// (§4.1). Shapes and dtypes are self-describing: every NdArray carries both
// alongside its row-major byte payload.
type DType string

const (
	Float16 DType = "float16"
	Float32 DType = "float32"
	Float64 DType = "float64"
	Uint8   DType = "uint8"
	Uint16  DType = "uint16"
	Uint32  DType = "uint32"
	Uint64  DType = "uint64"
	Int8    DType = "int8"
	Int16   DType = "int16"
	Int32   DType = "int32"
	Int64   DType = "int64"
)

// ElemSize returns the byte width of one element of dtype d, or 0 if d is
// unrecognized.
func (d DType) ElemSize() int {
	switch d {
	case Float16, Uint16, Int16:
		return 2
	case Float32, Uint32, Int32:
		return 4
	case Float64, Uint64, Int64:
		return 8
	case Uint8, Int8:
		return 1
	default:
		return 0
	}
}

func (d DType) Valid() bool { return d.ElemSize() > 0 }

// NdArray is a dense, row-major numeric array: dtype + shape + bytes. It is
// the wire representation of the "ndarray" extension in §6.
type NdArray struct {
	DType DType
	Shape []int
	Data  []byte
}

// NumElements returns the product of Shape, or 1 for a scalar (empty shape).
func (a NdArray) NumElements() int {
	n := 1
	for _, s := range a.Shape {
		n *= s
	}
	return n
}

// ByteLen returns the number of bytes the array's Data should hold given its
// dtype and shape.
func (a NdArray) ByteLen() int {
	return a.NumElements() * a.DType.ElemSize()
}

// Validate checks dtype/shape/data-length self-consistency.
func (a NdArray) Validate() error {
	if !a.DType.Valid() {
		return fmt.Errorf("wire: unknown dtype %q", a.DType)
	}
	for _, s := range a.Shape {
		if s < 0 {
			return fmt.Errorf("wire: negative shape dimension %d", s)
		}
	}
	if len(a.Data) != a.ByteLen() {
		return fmt.Errorf("wire: data length %d does not match shape/dtype (want %d)", len(a.Data), a.ByteLen())
	}
	return nil
}

func (a NdArray) Equal(b NdArray) bool {
	if a.DType != b.DType || len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return bytesEqual(a.Data, b.Data)
}

// Float64At decodes the element at flat row-major index idx as a float64,
// regardless of the underlying dtype. Used by the GR00T observation
// adapter's uint8 coercion and the GR00T action-adapter slicing.
func (a NdArray) Float64At(idx int) (float64, error) {
	sz := a.DType.ElemSize()
	off := idx * sz
	if off < 0 || off+sz > len(a.Data) {
		return 0, fmt.Errorf("wire: index %d out of range", idx)
	}
	b := a.Data[off : off+sz]
	switch a.DType {
	case Float16:
		bits := binary.LittleEndian.Uint16(b)
		return float64(float16.Frombits(bits).Float32()), nil
	case Float32:
		bits := binary.LittleEndian.Uint32(b)
		return float64(math.Float32frombits(bits)), nil
	case Float64:
		bits := binary.LittleEndian.Uint64(b)
		return math.Float64frombits(bits), nil
	case Uint8:
		return float64(b[0]), nil
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b)), nil
	case Uint32:
		return float64(binary.LittleEndian.Uint32(b)), nil
	case Uint64:
		return float64(binary.LittleEndian.Uint64(b)), nil
	case Int8:
		return float64(int8(b[0])), nil
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b))), nil
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b))), nil
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(b))), nil
	default:
		return 0, fmt.Errorf("wire: unknown dtype %q", a.DType)
	}
}

// NewFloat32Array builds a row-major float32 NdArray from flat values.
func NewFloat32Array(shape []int, values []float32) NdArray {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return NdArray{DType: Float32, Shape: shape, Data: buf}
}

// NewUint8Array builds a row-major uint8 NdArray (e.g. a JPEG-decoded image
// plane) from flat bytes.
func NewUint8Array(shape []int, values []byte) NdArray {
	return NdArray{DType: Uint8, Shape: shape, Data: append([]byte(nil), values...)}
}
