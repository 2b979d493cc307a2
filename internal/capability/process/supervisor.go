// Package process implements capability.ProcessSupervisor over os/exec,
// grounded on the teacher's exec.CommandContext usage in internal/agent
// (each named backend shells out to its own CLI binary and is tracked as a
// single long-lived *exec.Cmd).
package process

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/brainbot-robotics/brainbot/internal/logger"
)

// Spec names the command line for one supervised service.
type Spec struct {
	Path string
	Args []string
}

// Supervisor starts/stops named external processes by shelling out via
// os/exec, one *exec.Cmd tracked per service name (§4.4.4 "an optional
// ProcessSupervisor may bring up the peer process before use").
type Supervisor struct {
	specs map[string]Spec

	mu      sync.Mutex
	running map[string]*exec.Cmd
}

// New builds a Supervisor over the given service-name -> command specs.
func New(specs map[string]Spec) *Supervisor {
	return &Supervisor{specs: specs, running: map[string]*exec.Cmd{}}
}

// Start launches service if it isn't already running. A second Start call
// for an already-running service is a no-op (§4.4.4 prepare is idempotent).
func (s *Supervisor) Start(ctx context.Context, service string) error {
	spec, ok := s.specs[service]
	if !ok {
		return fmt.Errorf("process: no command configured for service %q", service)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd, ok := s.running[service]; ok && cmd.ProcessState == nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("process: start %q: %w", service, err)
	}
	s.running[service] = cmd

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warn("process: supervised service exited", "service", service, "err", err)
		}
	}()
	return nil
}

// Stop signals service's process to terminate, if running.
func (s *Supervisor) Stop(ctx context.Context, service string) error {
	s.mu.Lock()
	cmd, ok := s.running[service]
	s.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
