package wire

// Observation is the versioned envelope described in §3: payload carries the
// well-known "robot"/"base" sub-mappings plus free top-level keys.
type Observation struct {
	Payload     map[string]Value
	TimestampNs int64
	Metadata    map[string]Value
	Version     uint16
}

// Action carries actuator-channel targets. An empty Actions map means
// "no-op / do not move" (§3).
type Action struct {
	Actions     map[string]float64
	TimestampNs int64
	Metadata    map[string]Value
	Version     uint16
}

// NewEmptyAction returns the canonical no-op action used by the
// observation-contract negotiation short-circuit (§4.3), by the AI provider
// when it has no instruction or an empty chunk, and as the edge loop's
// initial last action.
func NewEmptyAction(timestampNs int64) Action {
	return Action{Actions: map[string]float64{}, TimestampNs: timestampNs, Version: 1}
}

// ZeroAction returns an action with every known actuator channel set to 0,
// used by the edge loop's fallback ladder after max_missed_actions (§4.5).
func ZeroAction(channels []string, timestampNs int64) Action {
	a := Action{Actions: make(map[string]float64, len(channels)), TimestampNs: timestampNs, Version: 1}
	for _, c := range channels {
		a.Actions[c] = 0
	}
	return a
}

// Status carries out-of-band notifications such as "shutdown" (§3).
type Status struct {
	Status      string
	TimestampNs int64
	Extra       map[string]Value
}

// ObservationHint tells the edge loop which observation shape to send on
// the next tick (§4.3).
type ObservationHint string

const (
	HintNumeric         ObservationHint = "numeric"
	HintFull            ObservationHint = "full"
	HintFullPreprocessed ObservationHint = "full_preprocessed"
)

// ToValue renders an Observation as a wire Map for encoding.
func (o Observation) ToValue() Value {
	m := map[string]Value{
		"payload":      Map(o.Payload),
		"timestamp_ns": Int(o.TimestampNs),
		"version":      Int(int64(o.Version)),
	}
	if o.Metadata != nil {
		m["metadata"] = Map(o.Metadata)
	}
	return Map(m)
}

// ObservationFromValue parses a wire Map into an Observation.
func ObservationFromValue(v Value) (Observation, bool) {
	m, ok := v.AsMap()
	if !ok {
		return Observation{}, false
	}
	o := Observation{Payload: map[string]Value{}, Version: 1}
	if p, ok := m["payload"].AsMap(); ok {
		o.Payload = p
	}
	if ts, ok := m["timestamp_ns"].AsInt(); ok {
		o.TimestampNs = ts
	}
	if ver, ok := m["version"].AsInt(); ok {
		o.Version = uint16(ver)
	}
	if md, ok := m["metadata"].AsMap(); ok {
		o.Metadata = md
	}
	return o, true
}

// ToValue renders an Action as a wire Map for encoding.
func (a Action) ToValue() Value {
	actions := make(map[string]Value, len(a.Actions))
	for k, v := range a.Actions {
		actions[k] = Float(v)
	}
	m := map[string]Value{
		"actions":      Map(actions),
		"timestamp_ns": Int(a.TimestampNs),
		"version":      Int(int64(a.Version)),
	}
	if a.Metadata != nil {
		m["metadata"] = Map(a.Metadata)
	}
	return Map(m)
}

// ActionFromValue parses a wire Map into an Action.
func ActionFromValue(v Value) (Action, bool) {
	m, ok := v.AsMap()
	if !ok {
		return Action{}, false
	}
	a := Action{Actions: map[string]float64{}, Version: 1}
	if acts, ok := m["actions"].AsMap(); ok {
		for k, fv := range acts {
			if f, ok := fv.AsFloat(); ok {
				a.Actions[k] = f
			}
		}
	}
	if ts, ok := m["timestamp_ns"].AsInt(); ok {
		a.TimestampNs = ts
	}
	if ver, ok := m["version"].AsInt(); ok {
		a.Version = uint16(ver)
	}
	if md, ok := m["metadata"].AsMap(); ok {
		a.Metadata = md
	}
	return a, true
}

// ToValue renders a Status as a wire Map for encoding.
func (s Status) ToValue() Value {
	m := map[string]Value{
		"status":       String(s.Status),
		"timestamp_ns": Int(s.TimestampNs),
	}
	for k, v := range s.Extra {
		m[k] = v
	}
	return Map(m)
}

// StatusFromValue parses a wire Map into a Status.
func StatusFromValue(v Value) (Status, bool) {
	m, ok := v.AsMap()
	if !ok {
		return Status{}, false
	}
	st, ok := m["status"].AsString()
	if !ok {
		return Status{}, false
	}
	s := Status{Status: st, Extra: map[string]Value{}}
	if ts, ok := m["timestamp_ns"].AsInt(); ok {
		s.TimestampNs = ts
	}
	for k, v := range m {
		if k == "status" || k == "timestamp_ns" {
			continue
		}
		s.Extra[k] = v
	}
	return s, true
}

// HasRankAtLeast2Array reports whether obs contains, under robot, any ndarray
// of rank >= 2 — the observation-contract negotiation test in §4.3 ("no
// array of rank >= 2 in robot" means the provider has no camera frames).
func (o Observation) HasRankAtLeast2Array() bool {
	robot, ok := o.Payload["robot"]
	if !ok {
		return false
	}
	m, ok := robot.AsMap()
	if !ok {
		return false
	}
	for _, v := range m {
		if arr, ok := v.AsNdArray(); ok && len(arr.Shape) >= 2 {
			return true
		}
	}
	return false
}
