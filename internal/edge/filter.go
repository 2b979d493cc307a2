package edge

import "sort"

// ActionFilter implements the optional median action filter (§4.5 "Action
// filter"): per key, a bounded FIFO of the last window_size values feeds a
// running median, optionally blended with the previous output.
type ActionFilter struct {
	windowSize int
	blendAlpha float64

	windows    map[string][]float64
	prevOutput map[string]float64
}

// NewActionFilter builds a filter. windowSize <= 0 is treated as 1 (no
// smoothing, pure passthrough median of the latest value).
func NewActionFilter(windowSize int, blendAlpha float64) *ActionFilter {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &ActionFilter{
		windowSize: windowSize,
		blendAlpha: blendAlpha,
		windows:    map[string][]float64{},
		prevOutput: map[string]float64{},
	}
}

// Apply filters action key by key and returns the result as a new map;
// action itself is not modified. Keys absent from action are dropped from
// the output and their tracked history is forgotten (§4.5).
func (f *ActionFilter) Apply(action map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(action))
	newWindows := make(map[string][]float64, len(action))
	newPrev := make(map[string]float64, len(action))

	for k, v := range action {
		w := append(f.windows[k], v)
		if len(w) > f.windowSize {
			w = w[len(w)-f.windowSize:]
		}
		newWindows[k] = w

		med := median(w)
		prev, hasPrev := f.prevOutput[k]
		y := med
		if hasPrev && f.blendAlpha < 1 {
			y = (1-f.blendAlpha)*prev + f.blendAlpha*med
		}
		out[k] = y
		newPrev[k] = y
	}

	f.windows = newWindows
	f.prevOutput = newPrev
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
