package edge

import "testing"

// TestActionFilterPassthroughIdentity covers TESTABLE PROPERTY 7: for
// window_size=1, blend_alpha=1, output equals input key-wise.
func TestActionFilterPassthroughIdentity(t *testing.T) {
	f := NewActionFilter(1, 1)
	inputs := []map[string]float64{
		{"a": 0.1, "b": -3.5},
		{"a": 7.25, "b": 0},
		{"a": -1, "b": 1},
	}
	for i, in := range inputs {
		out := f.Apply(in)
		for k, v := range in {
			if out[k] != v {
				t.Errorf("tick %d: out[%s] = %v, want %v", i, k, out[k], v)
			}
		}
		if len(out) != len(in) {
			t.Errorf("tick %d: len(out) = %d, want %d", i, len(out), len(in))
		}
	}
}

func TestActionFilterMedianSmoothing(t *testing.T) {
	f := NewActionFilter(3, 1)
	seq := []float64{1, 5, 2, 8, 3}
	want := []float64{1, 3, 2, 5, 3} // running median of the trailing window (<=3 entries)
	for i, v := range seq {
		out := f.Apply(map[string]float64{"x": v})
		if out["x"] != want[i] {
			t.Errorf("tick %d: median = %v, want %v", i, out["x"], want[i])
		}
	}
}

func TestActionFilterBlendsWithPreviousOutput(t *testing.T) {
	f := NewActionFilter(1, 0.5)
	first := f.Apply(map[string]float64{"x": 10})
	if first["x"] != 10 {
		t.Fatalf("first output = %v, want 10 (y_0 = median_0)", first["x"])
	}
	second := f.Apply(map[string]float64{"x": 0})
	want := 0.5*10 + 0.5*0
	if second["x"] != want {
		t.Errorf("second output = %v, want %v", second["x"], want)
	}
}

func TestActionFilterDropsAbsentKeys(t *testing.T) {
	f := NewActionFilter(2, 1)
	f.Apply(map[string]float64{"a": 1, "b": 2})
	out := f.Apply(map[string]float64{"a": 3})
	if _, ok := out["b"]; ok {
		t.Error("b present in output after being dropped from input")
	}
	if out["a"] != median([]float64{1, 3}) {
		t.Errorf("a = %v, want median of [1,3]", out["a"])
	}
}
