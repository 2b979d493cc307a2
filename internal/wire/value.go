// Package wire implements brainbot's self-describing value model and its
// CBOR-based binary codec (the encoded bytes are CBOR, not MessagePack;
// the ndarray and modality_config extensions are registered CBOR tags): a
// tagged union of scalars, strings,
// bytes, bools, lists, maps, and dense numeric arrays, plus the Observation,
// Action, and Status envelopes built on top of it.
package wire

import "fmt"

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
	KindNdArray
	KindModalityConfig
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindNdArray:
		return "ndarray"
	case KindModalityConfig:
		return "modality_config"
	default:
		return "unknown"
	}
}

// Value is the closed set of wire-representable values. The zero Value is
// Null. Construct via the typed constructors below, never by composite
// literal, so that a Value is never left in a half-built state.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	bytes []byte
	list  []Value
	m     map[string]Value
	arr   *NdArray
}

// ModalityConfig wraps a JSON document as the "modality_config" wire
// extension (§4.1, §6) — distinct from a plain String so receivers can tell
// a GR00T-style modality config apart from an ordinary string field.
func ModalityConfig(jsonDoc string) Value {
	return Value{kind: KindModalityConfig, s: jsonDoc}
}

func (v Value) AsModalityConfig() (string, bool) {
	return v.s, v.kind == KindModalityConfig
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(v bool) Value           { return Value{kind: KindBool, b: v} }
func Int(v int64) Value           { return Value{kind: KindInt, i: v} }
func Float(v float64) Value       { return Value{kind: KindFloat, f: v} }
func String(v string) Value       { return Value{kind: KindString, s: v} }
func Bytes(v []byte) Value        { return Value{kind: KindBytes, bytes: append([]byte(nil), v...)} }
func List(v ...Value) Value       { return Value{kind: KindList, list: v} }
func NdArrayValue(a NdArray) Value { return Value{kind: KindNdArray, arr: &a} }

// Map builds a map Value from a string-keyed Go map. Key ordering is never
// preserved, per the codec's invariant.
func Map(v map[string]Value) Value {
	if v == nil {
		v = map[string]Value{}
	}
	return Value{kind: KindMap, m: v}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) {
	if v.kind == KindFloat {
		return v.f, true
	}
	if v.kind == KindInt {
		return float64(v.i), true
	}
	return 0, false
}
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)    { return v.bytes, v.kind == KindBytes }
func (v Value) AsList() ([]Value, bool)    { return v.list, v.kind == KindList }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }
func (v Value) AsNdArray() (NdArray, bool) {
	if v.kind == KindNdArray && v.arr != nil {
		return *v.arr, true
	}
	return NdArray{}, false
}

// Equal performs structural equality, per the round-trip testable property
// (§8.4): numeric arrays compare by dtype, shape, and element-wise bytes.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindBytes:
		return bytesEqual(a.bytes, b.bytes)
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindNdArray:
		return a.arr.Equal(*b.arr)
	case KindModalityConfig:
		return a.s == b.s
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MapGet is a small convenience used throughout providers/orchestrator to
// read nested payload fields without repeating the two-value map idiom.
func MapGet(v Value, key string) (Value, bool) {
	m, ok := v.AsMap()
	if !ok {
		return Null(), false
	}
	val, ok := m[key]
	return val, ok
}

// MapGetPath resolves a dotted path ("robot.cameras.left") through nested
// maps, used by the camera publisher's nested frame lookup (§4.6).
func MapGetPath(v Value, path []string) (Value, bool) {
	cur := v
	for _, seg := range path {
		next, ok := MapGet(cur, seg)
		if !ok {
			return Null(), false
		}
		cur = next
	}
	return cur, true
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytes))
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.list))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.m))
	case KindNdArray:
		return fmt.Sprintf("ndarray(%s,%v)", v.arr.DType, v.arr.Shape)
	case KindModalityConfig:
		return fmt.Sprintf("modality_config(%d bytes)", len(v.s))
	default:
		return "?"
	}
}
