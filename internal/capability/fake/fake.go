// Package fake provides in-memory capability.RobotController,
// capability.Teleoperator, and capability.FrameSink implementations for
// tests, grounded on the teacher's NewTestStream style of minimal,
// pre-loadable test doubles.
package fake

import (
	"context"
	"sync"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// Robot is a fake capability.RobotController. Observations is consumed in
// order by Observe; the last entry repeats once exhausted.
type Robot struct {
	mu             sync.Mutex
	Connected      bool
	Observations   []map[string]wire.Value
	obsIdx         int
	Actuated       []map[string]float64
	Features       []string
	ConnectErr     error
	ActuateErr     error
}

func NewRobot(features []string) *Robot {
	return &Robot{Features: features}
}

func (r *Robot) Connect(ctx context.Context, calibrate bool) error {
	if r.ConnectErr != nil {
		return r.ConnectErr
	}
	r.Connected = true
	return nil
}

func (r *Robot) Disconnect(ctx context.Context) error {
	r.Connected = false
	return nil
}

func (r *Robot) Observe(ctx context.Context) (map[string]wire.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Observations) == 0 {
		return map[string]wire.Value{}, nil
	}
	idx := r.obsIdx
	if idx >= len(r.Observations) {
		idx = len(r.Observations) - 1
	} else {
		r.obsIdx++
	}
	return r.Observations[idx], nil
}

func (r *Robot) Actuate(ctx context.Context, action map[string]float64) error {
	if r.ActuateErr != nil {
		return r.ActuateErr
	}
	r.mu.Lock()
	r.Actuated = append(r.Actuated, action)
	r.mu.Unlock()
	return nil
}

func (r *Robot) ActionFeatures() []string { return r.Features }

// LastActuated returns the most recently actuated action, or nil.
func (r *Robot) LastActuated() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Actuated) == 0 {
		return nil
	}
	return r.Actuated[len(r.Actuated)-1]
}

// Teleop is a fake capability.Teleoperator returning a fixed action stream.
type Teleop struct {
	mu        sync.Mutex
	Connected bool
	Actions   []map[string]float64
	idx       int
	LastObs   map[string]wire.Value
}

func NewTeleop(actions ...map[string]float64) *Teleop {
	return &Teleop{Actions: actions}
}

func (t *Teleop) Connect(ctx context.Context) error {
	t.Connected = true
	return nil
}

func (t *Teleop) Disconnect(ctx context.Context) error {
	t.Connected = false
	return nil
}

func (t *Teleop) GetAction(ctx context.Context) (map[string]float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Actions) == 0 {
		return map[string]float64{}, nil
	}
	idx := t.idx
	if idx >= len(t.Actions) {
		idx = len(t.Actions) - 1
	} else {
		t.idx++
	}
	return t.Actions[idx], nil
}

func (t *Teleop) OnObservation(obs map[string]wire.Value) {
	t.mu.Lock()
	t.LastObs = obs
	t.mu.Unlock()
}

// Sink is a fake capability.FrameSink.
type Sink struct {
	mu       sync.Mutex
	features []string
	buffer   []map[string]wire.Value
	episodes int
}

func NewSink(features []string) *Sink {
	return &Sink{features: features}
}

func (s *Sink) Features() []string { return s.features }

func (s *Sink) AddFrame(frame map[string]wire.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, frame)
	return nil
}

func (s *Sink) SaveEpisode(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) > 0 {
		s.episodes++
	}
	s.buffer = nil
	return nil
}

func (s *Sink) ClearEpisodeBuffer() {
	s.mu.Lock()
	s.buffer = nil
	s.mu.Unlock()
}

func (s *Sink) NumEpisodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodes
}

func (s *Sink) EpisodeBufferSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Supervisor is a fake capability.ProcessSupervisor recording Start/Stop
// calls per service name.
type Supervisor struct {
	mu       sync.Mutex
	Started  map[string]int
	Stopped  map[string]int
	StartErr error
}

func NewSupervisor() *Supervisor {
	return &Supervisor{Started: map[string]int{}, Stopped: map[string]int{}}
}

func (s *Supervisor) Start(ctx context.Context, service string) error {
	if s.StartErr != nil {
		return s.StartErr
	}
	s.mu.Lock()
	s.Started[service]++
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) Stop(ctx context.Context, service string) error {
	s.mu.Lock()
	s.Stopped[service]++
	s.mu.Unlock()
	return nil
}
