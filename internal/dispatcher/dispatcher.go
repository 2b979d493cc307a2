// Package dispatcher implements the operator-facing mode-dispatch channel
// (§6 "Mode-dispatch channel (local)"): newline-delimited JSON commands that
// switch the orchestrator's active provider, one per line, replied to with
// "OK\n" or "ERROR: <msg>\n".
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brainbot-robotics/brainbot/internal/logger"
	"github.com/brainbot-robotics/brainbot/internal/orchestrator"
	"github.com/brainbot-robotics/brainbot/internal/provider"
)

// instructable is the narrow surface Dispatcher needs from the AI provider
// (set by an {"infer": ...} event). Satisfied by *provider.AI.
type instructable interface {
	SetInstruction(s string)
}

// controllable is the narrow surface Dispatcher needs from the data
// collection provider (set by a {"data": {"command": ...}} event). Satisfied
// by *provider.DataCollection.
type controllable interface {
	SendCommand(cmd provider.ControlCommand)
}

// Config names the provider keys and aliases the dispatcher resolves mode
// events against (§6, §9 "teleop aliases pointing at the same key").
type Config struct {
	AIKey      string // provider key to activate on {"infer": ...}, default "ai"
	IdleKey    string // provider key to activate on {"idle": ...}, default "idle"
	DataKey    string // provider key to activate on {"data": ...}, default "data"
	TeleopKeys map[string]string // alias -> provider key; "teleop:<alias>" is tried if absent

	AI   instructable  // optional: nil if no AI provider is configured
	Data controllable  // optional: nil if no data-collection provider is configured
}

// event is one queued (line, reply) pair. Queuing through a single channel
// drained by Run is what gives FIFO "dispatched events are delivered in
// arrival order" across however many line sources are attached (§5).
type event struct {
	line  string
	reply func(string)
}

// Dispatcher owns the mode event queue and the logic for applying one
// parsed event to an orchestrator (§6, §9 "Mode dispatcher").
type Dispatcher struct {
	orch *orchestrator.Orchestrator
	cfg  Config

	queue chan event
}

// New builds a Dispatcher bound to orch. Unset Config key fields fall back
// to their documented defaults.
func New(orch *orchestrator.Orchestrator, cfg Config) *Dispatcher {
	if cfg.AIKey == "" {
		cfg.AIKey = "ai"
	}
	if cfg.IdleKey == "" {
		cfg.IdleKey = "idle"
	}
	if cfg.DataKey == "" {
		cfg.DataKey = "data"
	}
	return &Dispatcher{orch: orch, cfg: cfg, queue: make(chan event, 32)}
}

// Submit enqueues one line for processing and is safe to call from any
// number of concurrent line-source goroutines (§5 "one reader thread ...
// + one per connected client"). reply is invoked exactly once, from Run's
// goroutine, with the line's "OK\n"/"ERROR: <msg>\n" response.
func (d *Dispatcher) Submit(line string, reply func(string)) {
	d.queue <- event{line: line, reply: reply}
}

// Run drains the queue until ctx is cancelled — the "one enqueue-drain
// thread" (§5) that gives mode events a single, globally ordered point of
// application against the orchestrator.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			ev.reply(d.process(ctx, ev.line))
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, line string) string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return errorReply(err)
	}

	switch {
	case has(raw, "teleop"):
		var alias string
		if err := json.Unmarshal(raw["teleop"], &alias); err != nil {
			return errorReply(err)
		}
		if err := d.orch.SetActive(ctx, d.resolveTeleopKey(alias)); err != nil {
			return errorReply(err)
		}
		return "OK\n"

	case has(raw, "infer"):
		var instruction string
		if err := json.Unmarshal(raw["infer"], &instruction); err != nil {
			return errorReply(err)
		}
		if d.cfg.AI != nil {
			d.cfg.AI.SetInstruction(instruction)
		}
		if err := d.orch.SetActive(ctx, d.cfg.AIKey); err != nil {
			return errorReply(err)
		}
		return "OK\n"

	case has(raw, "idle"):
		if err := d.orch.SetActive(ctx, d.cfg.IdleKey); err != nil {
			return errorReply(err)
		}
		return "OK\n"

	case has(raw, "data"):
		if err := d.handleData(ctx, raw["data"]); err != nil {
			return errorReply(err)
		}
		return "OK\n"

	case has(raw, "shutdown"):
		d.orch.InitiateShutdown()
		return "OK\n"

	default:
		return "ERROR: unsupported command\n"
	}
}

// resolveTeleopKey implements the alias/synonym rule from §9: an explicit
// Config.TeleopKeys entry wins, otherwise "teleop:<alias>" is assumed to be
// the registered provider key.
func (d *Dispatcher) resolveTeleopKey(alias string) string {
	if key, ok := d.cfg.TeleopKeys[alias]; ok {
		return key
	}
	return "teleop:" + alias
}

// handleData implements the three recognised {"data": ...} shapes (§6):
// an object with optional mode/command, a bare control-command string, or
// the empty string (switch to data mode with no command).
func (d *Dispatcher) handleData(ctx context.Context, raw json.RawMessage) error {
	if err := d.orch.SetActive(ctx, d.cfg.DataKey); err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var mode, command *string
	if raw[0] == '{' {
		var obj struct {
			Mode    *string `json:"mode"`
			Command *string `json:"command"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return err
		}
		mode, command = obj.Mode, obj.Command
	} else {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if s != "" {
			command = &s
		}
	}

	if mode != nil && *mode != "" {
		if _, ok := d.cfg.TeleopKeys[*mode]; !ok {
			logger.Warn("dispatcher: data mode alias has no configured teleop key", "alias", *mode)
		}
	}
	if command != nil && d.cfg.Data != nil {
		d.cfg.Data.SendCommand(provider.ControlCommand(*command))
	}
	return nil
}

func has(raw map[string]json.RawMessage, key string) bool {
	_, ok := raw[key]
	return ok
}

func errorReply(err error) string {
	return fmt.Sprintf("ERROR: %s\n", err.Error())
}
