package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brainbot-robotics/brainbot/internal/capability"
	"github.com/brainbot-robotics/brainbot/internal/history"
	"github.com/brainbot-robotics/brainbot/internal/logger"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// EpisodeState is the data-collection episode state machine (§4.4.5).
type EpisodeState int

const (
	EpisodeIdle EpisodeState = iota
	EpisodeRecording
	EpisodeReset
	EpisodeComplete
)

func (s EpisodeState) String() string {
	switch s {
	case EpisodeIdle:
		return "idle"
	case EpisodeRecording:
		return "recording"
	case EpisodeReset:
		return "reset"
	case EpisodeComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ControlCommand is an operator control command affecting the episode
// state machine (§4.4.5).
type ControlCommand string

const (
	CtlStop      ControlCommand = "stop"
	CtlNext      ControlCommand = "next"
	CtlSkip      ControlCommand = "skip"
	CtlRerecord  ControlCommand = "rerecord"
	CtlReset     ControlCommand = "reset"
	CtlResume    ControlCommand = "resume"
	CtlNextStage ControlCommand = "next_stage"
)

// teleopSource is the narrow Provider surface DataCollection drives to
// fetch a raw action each tick (satisfied by LocalTeleop/RemoteTeleop).
type teleopSource interface {
	Prepare(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Compute(ctx context.Context, obs wire.Observation) (wire.Action, error)
}

// DataCollection owns the episode state machine, a frame sink, a reference
// teleop, and three optional transform pipelines (§4.4.5).
type DataCollection struct {
	teleop                teleopSource
	sink                  capability.FrameSink
	teleopActionProcessor TransformFunc
	robotActionProcessor  TransformFunc
	observationTransform  func(robotObs map[string]wire.Value) (map[string]wire.Value, error)

	episodeSecs float64
	resetSecs   float64
	numEpisodes int
	taskLabel   string

	onAnnounce func(state EpisodeState)
	hist       *history.Store

	stopRequested    atomic.Bool
	exitEarly        atomic.Bool
	discardOnPersist atomic.Bool
	continueReq      atomic.Bool

	mu               sync.Mutex
	state            EpisodeState
	deadline         time.Time
	episodesRecorded int
}

// DataCollectionConfig bundles the optional construction parameters.
type DataCollectionConfig struct {
	TeleopActionProcessor TransformFunc
	RobotActionProcessor  TransformFunc
	ObservationTransform  func(robotObs map[string]wire.Value) (map[string]wire.Value, error)
	EpisodeSecs           float64
	ResetSecs             float64
	NumEpisodes           int
	TaskLabel             string
	OnAnnounce            func(state EpisodeState)
}

// NewDataCollection builds a DataCollection provider. teleop is either a
// LocalTeleop or RemoteTeleop (§4.4.5 "a reference teleop, either local or
// a nested remote teleop provider").
func NewDataCollection(teleop teleopSource, sink capability.FrameSink, cfg DataCollectionConfig) *DataCollection {
	return &DataCollection{
		teleop:                teleop,
		sink:                  sink,
		teleopActionProcessor: cfg.TeleopActionProcessor,
		robotActionProcessor:  cfg.RobotActionProcessor,
		observationTransform:  cfg.ObservationTransform,
		episodeSecs:           cfg.EpisodeSecs,
		resetSecs:             cfg.ResetSecs,
		numEpisodes:           cfg.NumEpisodes,
		taskLabel:             cfg.TaskLabel,
		onAnnounce:            cfg.OnAnnounce,
		state:                 EpisodeIdle,
	}
}

// SetHistory attaches an optional debugging ledger (§9). nil disables
// recording.
func (d *DataCollection) SetHistory(h *history.Store) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hist = h
}

// SendCommand latches the operator control command into an event flag and
// forces a synchronous state-machine re-evaluation (§4.4.5 "additionally
// force-evaluated synchronously on arrival").
func (d *DataCollection) SendCommand(cmd ControlCommand) {
	switch cmd {
	case CtlStop:
		d.stopRequested.Store(true)
	case CtlNext, CtlSkip:
		d.exitEarly.Store(true)
	case CtlRerecord, CtlReset:
		d.exitEarly.Store(true)
		d.discardOnPersist.Store(true)
	case CtlResume, CtlNextStage:
		d.continueReq.Store(true)
	}
	d.mu.Lock()
	d.tickLocked(context.Background())
	d.mu.Unlock()
}

// State returns the current episode state.
func (d *DataCollection) State() EpisodeState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// EpisodesRecorded returns the count of episodes persisted so far.
func (d *DataCollection) EpisodesRecorded() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.episodesRecorded
}

func (d *DataCollection) Prepare(ctx context.Context) error {
	if err := d.teleop.Prepare(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearFlagsLocked()
	if d.numEpisodes > 0 && d.episodesRecorded >= d.numEpisodes {
		d.state = EpisodeComplete
		d.announceLocked()
		return nil
	}
	d.enterRecordingLocked()
	return nil
}

// Shutdown flushes a partial in-progress episode (§4.4.5 "Partial-episode
// safety"), returns the state machine to Idle, and shuts down the reference
// teleop. The sink itself is not closed.
func (d *DataCollection) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.state == EpisodeRecording && d.sink.EpisodeBufferSize() > 0 {
		if err := d.sink.SaveEpisode(ctx); err != nil {
			logger.Warn("provider: partial-episode flush failed", "err", err)
		}
	}
	d.state = EpisodeIdle
	d.mu.Unlock()
	return d.teleop.Shutdown(ctx)
}

func (d *DataCollection) Compute(ctx context.Context, obs wire.Observation) (wire.Action, error) {
	action, err := d.teleop.Compute(ctx, obs)
	if err != nil {
		return wire.Action{}, err
	}

	robotObs, _ := obs.Payload["robot"].AsMap()
	actions := action.Actions

	if d.teleopActionProcessor != nil {
		actions, err = d.teleopActionProcessor(actions, robotObs)
		if err != nil {
			return wire.Action{}, err
		}
	}
	if d.robotActionProcessor != nil {
		actions, err = d.robotActionProcessor(actions, robotObs)
		if err != nil {
			return wire.Action{}, err
		}
	}

	d.mu.Lock()
	if d.state == EpisodeRecording {
		obsFields := robotObs
		if d.observationTransform != nil {
			obsFields, err = d.observationTransform(robotObs)
			if err != nil {
				d.mu.Unlock()
				return wire.Action{}, err
			}
		}
		frame := make(map[string]wire.Value, len(obsFields)+len(actions)+1)
		for k, v := range obsFields {
			frame[k] = v
		}
		for k, v := range actions {
			frame["action."+k] = wire.Float(v)
		}
		frame["task"] = wire.String(d.taskLabel)
		if err := d.sink.AddFrame(frame); err != nil {
			logger.Warn("provider: add frame failed", "err", err)
		}
	}
	d.tickLocked(ctx)
	d.mu.Unlock()

	return wire.Action{Actions: actions, TimestampNs: obs.TimestampNs, Version: 1}, nil
}

func (d *DataCollection) WantsFullObservation() bool { return true }

func (d *DataCollection) tickLocked(ctx context.Context) {
	now := time.Now()
	switch d.state {
	case EpisodeRecording:
		stop := d.stopRequested.Load()
		exitEarly := d.exitEarly.Load()
		if !now.Before(d.deadline) || exitEarly || stop {
			d.persistLocked(ctx)
			d.episodesRecorded++
			d.clearFlagsLocked()
			if stop || (d.numEpisodes > 0 && d.episodesRecorded >= d.numEpisodes) {
				d.state = EpisodeComplete
				d.announceLocked()
			} else {
				d.enterResetLocked()
			}
		}
	case EpisodeReset:
		cont := d.continueReq.Load()
		stop := d.stopRequested.Load()
		if !now.Before(d.deadline) || cont || stop {
			d.clearFlagsLocked()
			if stop {
				d.state = EpisodeComplete
				d.announceLocked()
			} else {
				d.enterRecordingLocked()
			}
		}
	case EpisodeComplete, EpisodeIdle:
		// Complete is passthrough until the next Prepare(); Idle only
		// transitions via Prepare.
	}
}

func (d *DataCollection) persistLocked(ctx context.Context) {
	if d.sink.EpisodeBufferSize() == 0 {
		return
	}
	if d.discardOnPersist.Load() {
		d.sink.ClearEpisodeBuffer()
		return
	}
	if err := d.sink.SaveEpisode(ctx); err != nil {
		logger.Warn("provider: save episode failed", "err", err)
	}
}

func (d *DataCollection) enterRecordingLocked() {
	d.state = EpisodeRecording
	d.deadline = time.Now().Add(time.Duration(d.episodeSecs * float64(time.Second)))
	d.announceLocked()
}

func (d *DataCollection) enterResetLocked() {
	d.state = EpisodeReset
	d.deadline = time.Now().Add(time.Duration(d.resetSecs * float64(time.Second)))
	d.announceLocked()
}

func (d *DataCollection) announceLocked() {
	d.hist.AppendBestEffort(history.KindEpisodeTransition, d.state.String(), "")
	if d.onAnnounce != nil {
		d.onAnnounce(d.state)
	}
}

func (d *DataCollection) clearFlagsLocked() {
	d.stopRequested.Store(false)
	d.exitEarly.Store(false)
	d.discardOnPersist.Store(false)
	d.continueReq.Store(false)
}
