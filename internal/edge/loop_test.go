package edge

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/brainbot-robotics/brainbot/internal/capability/fake"
	"github.com/brainbot-robotics/brainbot/internal/rpc"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// edgeServerCtrl is a mutable handle into a running test rpc.Server so a
// test can change its delay/reply between ticks and inspect what the loop
// actually sent.
type edgeServerCtrl struct {
	mu      sync.Mutex
	delay   time.Duration
	reply   map[string]wire.Value
	lastObs wire.Value
}

func (c *edgeServerCtrl) setDelay(d time.Duration) {
	c.mu.Lock()
	c.delay = d
	c.mu.Unlock()
}

func (c *edgeServerCtrl) setReply(r map[string]wire.Value) {
	c.mu.Lock()
	c.reply = r
	c.mu.Unlock()
}

func (c *edgeServerCtrl) observation() wire.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastObs
}

func startEdgeServer(t *testing.T) (addr string, stop func(), ctrl *edgeServerCtrl) {
	t.Helper()
	srv, err := rpc.NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	c := &edgeServerCtrl{reply: map[string]wire.Value{}}
	srv.Register("get_action", func(ctx context.Context, data map[string]wire.Value) (map[string]wire.Value, error) {
		c.mu.Lock()
		d := c.delay
		r := c.reply
		c.mu.Unlock()
		c.mu.Lock()
		c.lastObs = data["observation"]
		c.mu.Unlock()
		if d > 0 {
			time.Sleep(d)
		}
		return r, nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)
	time.Sleep(10 * time.Millisecond)
	return ln.Addr().String(), cancel, c
}

func okActionReply(actions map[string]float64, hint string) map[string]wire.Value {
	act := wire.Action{Actions: actions, TimestampNs: 1, Version: 1}
	r := map[string]wire.Value{"action": act.ToValue()}
	if hint != "" {
		r["observation_hint"] = wire.String(hint)
	}
	return r
}

func newTestLoop(t *testing.T, addr string, robot *fake.Robot, cfg Config) *Loop {
	t.Helper()
	client, err := rpc.NewClient("tcp", addr, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.RecvTimeout = 20 * time.Millisecond
	client.SendTimeout = 20 * time.Millisecond
	client.MaxRetries = 0
	return NewLoop(robot, client, nil, cfg)
}

// TestLoopFallbackLadder exercises §4.5 step 5's Timeout branch end to end:
// literal fallback on the first miss, then the zero-vector once
// max_missed_actions is exceeded, then normal recovery.
func TestLoopFallbackLadder(t *testing.T) {
	addr, stop, ctrl := startEdgeServer(t)
	defer stop()

	robot := fake.NewRobot([]string{"a", "b"})
	robot.Observations = []map[string]wire.Value{
		{"angle": wire.Float(1)},
	}

	loop := newTestLoop(t, addr, robot, Config{
		RateHz:           1000,
		MaxMissedActions: 1,
		FallbackAction:   map[string]float64{"a": 0.42, "b": 0.42},
	})

	ctrl.setDelay(200 * time.Millisecond) // force TIMEOUT on every attempt below

	if _, err := loop.tick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if got := robot.LastActuated(); got["a"] != 0.42 {
		t.Errorf("tick 1 actuated = %v, want literal fallback", got)
	}

	if _, err := loop.tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if got := robot.LastActuated(); got["a"] != 0 || got["b"] != 0 {
		t.Errorf("tick 2 actuated = %v, want zero-vector after max_missed_actions", got)
	}

	ctrl.setDelay(0)
	ctrl.setReply(okActionReply(map[string]float64{"a": 9, "b": 9}, "numeric"))
	if _, err := loop.tick(context.Background()); err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	if got := robot.LastActuated(); got["a"] != 9 {
		t.Errorf("tick 3 actuated = %v, want recovered action", got)
	}
}

// TestLoopAppErrorReplyUsesFallbackLadder verifies that a get_action
// {error} reply (§7: AI-inference timeout or no active provider) is
// absorbed by the miss-counter fallback ladder rather than killing the
// loop, the same as a TIMEOUT.
func TestLoopAppErrorReplyUsesFallbackLadder(t *testing.T) {
	srv, err := rpc.NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Register("get_action", func(ctx context.Context, data map[string]wire.Value) (map[string]wire.Value, error) {
		return nil, errors.New("no active provider")
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln)
	time.Sleep(10 * time.Millisecond)

	robot := fake.NewRobot([]string{"a", "b"})
	robot.Observations = []map[string]wire.Value{
		{"angle": wire.Float(1)},
	}
	loop := newTestLoop(t, ln.Addr().String(), robot, Config{
		RateHz:           1000,
		MaxMissedActions: 2,
		FallbackAction:   map[string]float64{"a": 0.7, "b": 0.7},
	})

	shutdown, err := loop.tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v (APP_ERROR must not be loop-fatal)", err)
	}
	if shutdown {
		t.Error("tick reported shutdown for an APP_ERROR reply")
	}
	if got := robot.LastActuated(); got["a"] != 0.7 {
		t.Errorf("actuated = %v, want literal fallback on APP_ERROR", got)
	}
}

// TestLoopObservationModeNegotiation verifies that an observation_hint of
// "full" in the reply switches the next outgoing observation from numeric-
// only to the full robot field set (§4.3, §4.5 step 5 OK branch).
func TestLoopObservationModeNegotiation(t *testing.T) {
	addr, stop, ctrl := startEdgeServer(t)
	defer stop()

	img := wire.NewUint8Array([]int{2, 2, 1}, make([]byte, 4))
	obsFields := map[string]wire.Value{
		"angle": wire.Float(1.2),
		"image": wire.NdArrayValue(img),
	}
	robot := fake.NewRobot(nil)
	robot.Observations = []map[string]wire.Value{obsFields, obsFields}

	loop := newTestLoop(t, addr, robot, Config{RateHz: 1000, MaxMissedActions: 2})

	ctrl.setReply(okActionReply(map[string]float64{}, "full"))
	if _, err := loop.tick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	sentRobot, _ := ctrl.observation().AsMap()
	robotFields, _ := sentRobot["robot"].AsMap()
	if _, hasImage := robotFields["image"]; hasImage {
		t.Error("tick 1 sent image field, want numeric-only (default mode)")
	}

	ctrl.setReply(okActionReply(map[string]float64{}, "full"))
	if _, err := loop.tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	sentRobot, _ = ctrl.observation().AsMap()
	robotFields, _ = sentRobot["robot"].AsMap()
	if _, hasImage := robotFields["image"]; !hasImage {
		t.Error("tick 2 omitted image field, want full mode after observation_hint")
	}
}

// TestLoopShutdownReplyStopsWithoutActuating covers the Shutdown branch of
// §4.5 step 5: no actuation happens and tick reports shutdown=true.
func TestLoopShutdownReplyStopsWithoutActuating(t *testing.T) {
	addr, stop, ctrl := startEdgeServer(t)
	defer stop()

	robot := fake.NewRobot([]string{"a"})
	robot.Observations = []map[string]wire.Value{{"angle": wire.Float(1)}}
	loop := newTestLoop(t, addr, robot, Config{RateHz: 1000, MaxMissedActions: 1})

	status := wire.Status{Status: "shutdown", TimestampNs: 1}
	ctrl.setReply(map[string]wire.Value{"status": status.ToValue()})

	shutdown, err := loop.tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !shutdown {
		t.Error("tick did not report shutdown")
	}
	if len(robot.Actuated) != 0 {
		t.Errorf("Actuated = %v, want no actuation on shutdown", robot.Actuated)
	}
}

// TestLoopDriverErrorIsFatal verifies a RobotController failure aborts the
// loop rather than being absorbed by the fallback ladder (§7: DRIVER is
// never retried).
func TestLoopDriverErrorIsFatal(t *testing.T) {
	addr, stop, _ := startEdgeServer(t)
	defer stop()

	robot := &failingRobot{err: context.DeadlineExceeded}
	loop := newTestLoop(t, addr, robot, Config{RateHz: 1000, MaxMissedActions: 1})

	_, err := loop.tick(context.Background())
	if err == nil {
		t.Fatal("tick returned nil error, want DriverError")
	}
	var driverErr *DriverError
	if !asDriverError(err, &driverErr) {
		t.Errorf("err = %v, want *DriverError", err)
	}
}

func asDriverError(err error, target **DriverError) bool {
	if de, ok := err.(*DriverError); ok {
		*target = de
		return true
	}
	return false
}

type failingRobot struct{ err error }

func (f *failingRobot) Connect(ctx context.Context, calibrate bool) error { return nil }
func (f *failingRobot) Disconnect(ctx context.Context) error              { return nil }
func (f *failingRobot) Observe(ctx context.Context) (map[string]wire.Value, error) {
	return nil, f.err
}
func (f *failingRobot) Actuate(ctx context.Context, action map[string]float64) error { return nil }
func (f *failingRobot) ActionFeatures() []string                                     { return nil }
