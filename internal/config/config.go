// Package config loads the two recognized YAML documents (§6): the
// orchestrator config and the edge config. Loading follows the teacher's
// tolerant idiom — a missing file yields zero-value defaults, not an error.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkConfig is the `network` section shared by both documents.
type NetworkConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TimeoutMs int    `yaml:"timeout_ms"`
	APIToken  string `yaml:"api_token,omitempty"`
}

func (n NetworkConfig) Timeout() time.Duration {
	if n.TimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(n.TimeoutMs) * time.Millisecond
}

// TeleopEntry is one entry of the `teleops` named map.
type TeleopEntry struct {
	Mode      string         `yaml:"mode"` // "local" or "remote"
	Host      string         `yaml:"host,omitempty"`
	Port      int            `yaml:"port,omitempty"`
	TimeoutMs int            `yaml:"timeout_ms,omitempty"`
	APIToken  string         `yaml:"api_token,omitempty"`
	Config    map[string]any `yaml:"config,omitempty"`
}

func (t TeleopEntry) Timeout() time.Duration {
	if t.TimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// AIConfig is the `ai` section.
type AIConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	TimeoutMs          int      `yaml:"timeout_ms"`
	StartupTimeoutMs   int      `yaml:"startup_timeout_ms,omitempty"`
	APIToken           string   `yaml:"api_token,omitempty"`
	InstructionKey     string   `yaml:"instruction_key"`
	ModalityConfigPath string   `yaml:"modality_config_path,omitempty"`
	CameraKeys         []string `yaml:"camera_keys,omitempty"`
	StateKeys          []string `yaml:"state_keys,omitempty"`
	ActionHorizon      int      `yaml:"action_horizon"`
}

func (a AIConfig) Timeout() time.Duration {
	if a.TimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

func (a AIConfig) StartupTimeout() time.Duration {
	if a.StartupTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.StartupTimeoutMs) * time.Millisecond
}

// DataConfig is the `data` section (data-collection provider settings).
type DataConfig struct {
	Robot       string `yaml:"robot"`
	Dataset     string `yaml:"dataset"`
	Teleop      string `yaml:"teleop,omitempty"`
	DisplayData bool   `yaml:"display_data"`
	Resume      bool   `yaml:"resume"`
	PlaySounds  bool   `yaml:"play_sounds"`

	NumEpisodes   int     `yaml:"num_episodes"`
	EpisodeSecs   float64 `yaml:"episode_s"`
	ResetSecs     float64 `yaml:"reset_s"`
	TaskLabel     string  `yaml:"task_label,omitempty"`
}

// CameraSource is one entry of `camera_stream.sources`.
type CameraSource struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"` // dotted lookup path into the observation
	FPS     float64 `yaml:"fps,omitempty"`
	Quality int    `yaml:"quality,omitempty"`
}

// CameraStreamConfig is the `camera_stream` section.
type CameraStreamConfig struct {
	Host    string         `yaml:"host"`
	Port    int            `yaml:"port"`
	Quality int            `yaml:"quality"`
	Sources []CameraSource `yaml:"sources,omitempty"`
}

// WebvizConfig is the `webviz` section.
type WebvizConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OrchestratorConfig is the first recognized YAML document (§6).
type OrchestratorConfig struct {
	Network     NetworkConfig          `yaml:"network"`
	Teleops     map[string]TeleopEntry `yaml:"teleops,omitempty"`
	DefaultMode string                 `yaml:"default_mode"`
	AI          AIConfig               `yaml:"ai"`
	Data        DataConfig             `yaml:"data"`
	Camera      CameraStreamConfig     `yaml:"camera_stream"`
	Webviz      WebvizConfig           `yaml:"webviz"`
}

// ActionFilterConfig is the edge `action_filter` section.
type ActionFilterConfig struct {
	Type        string  `yaml:"type"` // "" or "median"
	WindowSize  int     `yaml:"window_size"`
	BlendAlpha  float64 `yaml:"blend_alpha"`
}

// ObservationPreprocessConfig is the edge `observation_preprocess` section.
type ObservationPreprocessConfig struct {
	TargetHeight  int    `yaml:"target_height"`
	TargetWidth   int    `yaml:"target_width"`
	Interpolation string `yaml:"interpolation,omitempty"`
}

// EdgeConfig is the second recognized YAML document (§6). Camera is also
// accepted here (rather than only on OrchestratorConfig): the edge process
// is the one with direct access to the robot's raw per-tick camera frames
// (§4.5 step 3), so it is the process that actually runs the camera_stream
// publisher described by §4.6.
type EdgeConfig struct {
	Network             NetworkConfig               `yaml:"network"`
	LoopHz              float64                     `yaml:"loop_hz"`
	MaxMissedActions    int                         `yaml:"max_missed_actions"`
	FallbackAction      map[string]float64          `yaml:"fallback_action,omitempty"`
	CalibrateOnStart    bool                        `yaml:"calibrate_on_start"`
	ObservationAdapter  string                      `yaml:"observation_adapter"` // "numeric_only" | "identity"
	ObservationPreprocess ObservationPreprocessConfig `yaml:"observation_preprocess,omitempty"`
	ActionFilter        ActionFilterConfig          `yaml:"action_filter,omitempty"`
	Camera              CameraStreamConfig          `yaml:"camera_stream,omitempty"`
}

func (e EdgeConfig) Period() time.Duration {
	hz := e.LoopHz
	if hz <= 0 {
		hz = 30
	}
	return time.Duration(float64(time.Second) / hz)
}

// LoadOrchestratorConfig reads and parses path. A missing file yields a
// zero-value config (no error), matching the teacher's LoadWingConfig
// idiom.
func LoadOrchestratorConfig(path string) (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEdgeConfig reads and parses path, same tolerant-missing-file idiom.
func LoadEdgeConfig(path string) (*EdgeConfig, error) {
	cfg := &EdgeConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
