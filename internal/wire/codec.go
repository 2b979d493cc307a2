package wire

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Tag numbers for the two wire extensions named in §4.1/§6. They sit in the
// "specific" CBOR tag range so they never collide with RFC 8949's reserved
// tags.
const (
	tagNdArray         = 55800
	tagModalityConfig  = 55801
	defaultMaxFrameBytes = 64 << 20 // 64 MiB
)

// ErrOversized is returned by Decode when an ndarray payload exceeds the
// codec's configured MaxFrameBytes (§4.1, error kind OVERSIZED in §7).
var ErrOversized = fmt.Errorf("wire: OVERSIZED")

// ndarrayWire is the CBOR-level encoding of an NdArray: dtype tag, shape,
// and raw row-major bytes, matching the "{__ndarray__: true, npy: bytes}"
// shape described informally in §6 (here expressed as a typed CBOR tag
// rather than a sentinel map key, since the codec is binary-native).
type ndarrayWire struct {
	DType string `cbor:"d"`
	Shape []int  `cbor:"s"`
	Data  []byte `cbor:"b"`
}

// modalityConfigWire carries the "modality_config" extension: an opaque
// JSON document (GR00T-style modality config), tagged so receivers can
// distinguish it from an ordinary string.
type modalityConfigWire struct {
	JSON string `cbor:"json"`
}

// Codec wraps a configured CBOR encode/decode mode pair with brainbot's
// Value<->native-Go bridging and the max-frame-bytes guard.
type Codec struct {
	maxFrameBytes int
	enc           cbor.EncMode
	dec           cbor.DecMode
}

// NewCodec builds a Codec. maxFrameBytes <= 0 uses the default (64 MiB).
func NewCodec(maxFrameBytes int) (*Codec, error) {
	if maxFrameBytes <= 0 {
		maxFrameBytes = defaultMaxFrameBytes
	}
	tags := cbor.NewTagSet()
	if err := tags.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		reflect.TypeOf(ndarrayWire{}), tagNdArray,
	); err != nil {
		return nil, err
	}
	if err := tags.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		reflect.TypeOf(modalityConfigWire{}), tagModalityConfig,
	); err != nil {
		return nil, err
	}

	encOpts := cbor.CoreDetEncOptions()
	enc, err := encOpts.EncModeWithTags(tags)
	if err != nil {
		return nil, err
	}

	decOpts := cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}
	dec, err := decOpts.DecModeWithTags(tags)
	if err != nil {
		return nil, err
	}

	return &Codec{maxFrameBytes: maxFrameBytes, enc: enc, dec: dec}, nil
}

// Encode serializes v to its binary wire form.
func (c *Codec) Encode(v Value) ([]byte, error) {
	native, err := toNative(v)
	if err != nil {
		return nil, err
	}
	return c.enc.Marshal(native)
}

// Decode parses the binary wire form back into a Value. Arrays whose byte
// payload would exceed MaxFrameBytes fail with ErrOversized.
func (c *Codec) Decode(data []byte) (Value, error) {
	if len(data) > c.maxFrameBytes {
		return Null(), ErrOversized
	}
	var native any
	if err := c.dec.Unmarshal(data, &native); err != nil {
		return Null(), fmt.Errorf("wire: decode: %w", err)
	}
	return c.fromNative(native)
}

// toNative converts a Value tree into the plain Go types cbor.Marshal
// understands (map[string]any, []any, ndarrayWire, etc).
func toNative(v Value) (any, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindBool:
		b, _ := v.AsBool()
		return b, nil
	case KindInt:
		i, _ := v.AsInt()
		return i, nil
	case KindFloat:
		f, _ := v.AsFloat()
		return f, nil
	case KindString:
		s, _ := v.AsString()
		return s, nil
	case KindBytes:
		b, _ := v.AsBytes()
		return b, nil
	case KindList:
		l, _ := v.AsList()
		out := make([]any, len(l))
		for i, e := range l {
			n, err := toNative(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case KindMap:
		m, _ := v.AsMap()
		out := make(map[string]any, len(m))
		for k, e := range m {
			n, err := toNative(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case KindNdArray:
		arr, _ := v.AsNdArray()
		if err := arr.Validate(); err != nil {
			return nil, err
		}
		return ndarrayWire{DType: string(arr.DType), Shape: arr.Shape, Data: arr.Data}, nil
	case KindModalityConfig:
		doc, _ := v.AsModalityConfig()
		return modalityConfigWire{JSON: doc}, nil
	default:
		return nil, fmt.Errorf("wire: unknown kind %v", v.Kind())
	}
}

func (c *Codec) fromNative(n any) (Value, error) {
	switch x := n.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case int64:
		return Int(x), nil
	case uint64:
		return Int(int64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case ndarrayWire:
		d := DType(x.DType)
		if !d.Valid() {
			return Null(), fmt.Errorf("wire: decode ndarray: unknown dtype %q", x.DType)
		}
		arr := NdArray{DType: d, Shape: x.Shape, Data: x.Data}
		if arr.ByteLen() > c.maxFrameBytes {
			return Null(), ErrOversized
		}
		if err := arr.Validate(); err != nil {
			return Null(), err
		}
		return NdArrayValue(arr), nil
	case modalityConfigWire:
		return ModalityConfig(x.JSON), nil
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			v, err := c.fromNative(e)
			if err != nil {
				return Null(), err
			}
			out[i] = v
		}
		return List(out...), nil
	case map[string]any:
		out := make(map[string]Value, len(x))
		for k, e := range x {
			v, err := c.fromNative(e)
			if err != nil {
				return Null(), err
			}
			out[k] = v
		}
		return Map(out), nil
	case map[any]any:
		out := make(map[string]Value, len(x))
		for k, e := range x {
			ks, ok := k.(string)
			if !ok {
				return Null(), fmt.Errorf("wire: non-string map key %v", k)
			}
			v, err := c.fromNative(e)
			if err != nil {
				return Null(), err
			}
			out[ks] = v
		}
		return Map(out), nil
	default:
		return Null(), fmt.Errorf("wire: unsupported decoded type %T", n)
	}
}

