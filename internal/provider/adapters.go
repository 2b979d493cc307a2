package provider

import (
	"fmt"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// ObservationAdapterFunc adapts a raw observation into the payload shape an
// inference/teleop endpoint expects (§4.4.2, §4.4.4).
type ObservationAdapterFunc func(obs wire.Observation) (map[string]wire.Value, error)

// ActionAdapterFunc turns an inference reply into a chunk of up to
// actionHorizon per-tick action maps (§4.4.2 "compute(obs)" step e).
type ActionAdapterFunc func(reply map[string]wire.Value, actionHorizon int) ([]map[string]float64, error)

// TransformFunc is the shape of the optional teleop_action_processor,
// robot_action_processor, and observation-transform pipelines (§4.4.3,
// §4.4.5): (action or observation, robot observation) -> replacement map.
type TransformFunc func(fields map[string]float64, robotObs map[string]wire.Value) (map[string]float64, error)

// PassthroughObservation is the default observation adapter (§4.4.2
// "default = payload as-is").
func PassthroughObservation(obs wire.Observation) (map[string]wire.Value, error) {
	out := make(map[string]wire.Value, len(obs.Payload))
	for k, v := range obs.Payload {
		out[k] = v
	}
	return out, nil
}

// NumericOnlyObservation strips non-numeric top-level fields, used by the
// remote-teleop provider to build a numeric-only snapshot (§4.4.4
// "adapts the observation to a numeric-only snapshot").
func NumericOnlyObservation(obs wire.Observation) (map[string]wire.Value, error) {
	out := map[string]wire.Value{}
	robot, ok := obs.Payload["robot"]
	if !ok {
		return out, nil
	}
	m, ok := robot.AsMap()
	if !ok {
		return out, nil
	}
	numeric := map[string]wire.Value{}
	for k, v := range m {
		switch v.Kind() {
		case wire.KindFloat, wire.KindInt, wire.KindBool:
			numeric[k] = v
		}
	}
	out["robot"] = wire.Map(numeric)
	return out, nil
}

// NumericOnlyAction is the default action adapter (§4.4.2 "Action adapter
// default: extract numeric key/value pairs only"). The inference reply is
// treated as a single-step action; no chunk slicing is performed.
func NumericOnlyAction(reply map[string]wire.Value, actionHorizon int) ([]map[string]float64, error) {
	actionVal, ok := reply["action"]
	if !ok {
		return nil, fmt.Errorf("provider: inference reply missing action field")
	}
	m, ok := actionVal.AsMap()
	if !ok {
		return nil, fmt.Errorf("provider: inference reply action is not a map")
	}
	action := map[string]float64{}
	for k, v := range m {
		if f, ok := v.AsFloat(); ok {
			action[k] = f
		}
	}
	return []map[string]float64{action}, nil
}
