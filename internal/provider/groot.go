package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// GR00TModalityConfig names the joint groupings a GR00T-style policy
// expects, decoded by ParseGR00TModalityConfig from a modality-config JSON
// document (cmd/orchestrator reads it from ai.modality_config_path; §4.4.2).
type GR00TModalityConfig struct {
	CameraKeys         []string `json:"camera_keys"`
	LeftArmJoints      []string `json:"left_arm_joints"`
	RightArmJoints     []string `json:"right_arm_joints"`
	LeftGripperJoints  []string `json:"left_gripper_joints"`
	RightGripperJoints []string `json:"right_gripper_joints"`
}

// ParseGR00TModalityConfig decodes a modality_config JSON document.
func ParseGR00TModalityConfig(jsonDoc string) (*GR00TModalityConfig, error) {
	var cfg GR00TModalityConfig
	if err := json.Unmarshal([]byte(jsonDoc), &cfg); err != nil {
		return nil, fmt.Errorf("provider: parse modality config: %w", err)
	}
	return &cfg, nil
}

// GR00TObservationAdapter splits camera frames, coerces them to uint8, and
// projects the joint values named in cfg into numbered "state.<group>"
// slices (§4.4.2 "split cameras, coerce to uint8, project into numbered
// state slices per a modality config file").
func GR00TObservationAdapter(cfg *GR00TModalityConfig) ObservationAdapterFunc {
	return func(obs wire.Observation) (map[string]wire.Value, error) {
		out := map[string]wire.Value{}

		for _, camPath := range cfg.CameraKeys {
			val, ok := wire.MapGetPath(wire.Map(obs.Payload), strings.Split(camPath, "."))
			if !ok {
				continue
			}
			arr, ok := val.AsNdArray()
			if !ok {
				continue
			}
			coerced, err := coerceUint8(arr)
			if err != nil {
				continue
			}
			out["video."+lastSegment(camPath)] = wire.NdArrayValue(coerced)
		}

		robot, _ := obs.Payload["robot"].AsMap()
		out["state.left_arm"] = projectState(robot, cfg.LeftArmJoints)
		out["state.right_arm"] = projectState(robot, cfg.RightArmJoints)
		out["state.left_gripper"] = projectState(robot, cfg.LeftGripperJoints)
		out["state.right_gripper"] = projectState(robot, cfg.RightGripperJoints)

		return out, nil
	}
}

func lastSegment(dotted string) string {
	parts := strings.Split(dotted, ".")
	return parts[len(parts)-1]
}

func projectState(robot map[string]wire.Value, joints []string) wire.Value {
	values := make([]float32, len(joints))
	for i, name := range joints {
		if v, ok := robot[name]; ok {
			if f, ok := v.AsFloat(); ok {
				values[i] = float32(f)
			}
		}
	}
	return wire.NdArrayValue(wire.NewFloat32Array([]int{len(joints)}, values))
}

func coerceUint8(arr wire.NdArray) (wire.NdArray, error) {
	if arr.DType == wire.Uint8 {
		return arr, nil
	}
	n := arr.NumElements()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		f, err := arr.Float64At(i)
		if err != nil {
			return wire.NdArray{}, err
		}
		if f < 0 {
			f = 0
		}
		if f > 255 {
			f = 255
		}
		out[i] = byte(f)
	}
	return wire.NewUint8Array(arr.Shape, out), nil
}

// GR00TActionAdapter slices the chunked action arrays named action.left_arm,
// action.right_arm, action.left_gripper, action.right_gripper onto the
// configured joint-name lists, passing through any other scalar numeric
// action.* entry unchanged for every step (§4.4.2); non-scalar extra entries
// are dropped. A 1-D array is read as step 0 only; when 2-D arrays make the
// chunk longer, its step-0 values are repeated in the later steps.
func GR00TActionAdapter(cfg *GR00TModalityConfig) ActionAdapterFunc {
	return func(reply map[string]wire.Value, actionHorizon int) ([]map[string]float64, error) {
		groups := []struct {
			key    string
			joints []string
		}{
			{"action.left_arm", cfg.LeftArmJoints},
			{"action.right_arm", cfg.RightArmJoints},
			{"action.left_gripper", cfg.LeftGripperJoints},
			{"action.right_gripper", cfg.RightGripperJoints},
		}

		steps := 1
		for _, g := range groups {
			arr, ok := reply[g.key].AsNdArray()
			if !ok || len(g.joints) == 0 {
				continue
			}
			if len(arr.Shape) >= 2 {
				t := arr.Shape[0]
				if t > actionHorizon {
					t = actionHorizon
				}
				if t > steps {
					steps = t
				}
			}
		}

		chunk := make([]map[string]float64, steps)
		for i := range chunk {
			chunk[i] = map[string]float64{}
		}

		for _, g := range groups {
			arr, ok := reply[g.key].AsNdArray()
			if !ok || len(g.joints) == 0 {
				continue
			}
			rank := len(arr.Shape)
			n := len(g.joints)
			for step := 0; step < steps; step++ {
				for j, joint := range g.joints {
					var flatIdx int
					if rank >= 2 {
						flatIdx = step*n + j
					} else {
						if step > 0 {
							continue
						}
						flatIdx = j
					}
					f, err := arr.Float64At(flatIdx)
					if err != nil {
						continue
					}
					chunk[step][joint] = f
				}
				if rank < 2 && step == 0 {
					// 1-D arrays are read at step 0 only; their values are
					// copied into the chunk's later steps below.
					continue
				}
			}
			if rank < 2 {
				for step := 1; step < steps; step++ {
					for k, v := range chunk[0] {
						if _, exists := chunk[step][k]; !exists {
							chunk[step][k] = v
						}
					}
				}
			}
		}

		for k, v := range reply {
			if !strings.HasPrefix(k, "action.") {
				continue
			}
			switch k {
			case "action.left_arm", "action.right_arm", "action.left_gripper", "action.right_gripper":
				continue
			}
			if f, ok := v.AsFloat(); ok {
				for step := range chunk {
					chunk[step][k] = f
				}
			}
		}

		return chunk, nil
	}
}
