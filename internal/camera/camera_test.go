package camera

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

type fakeSink struct {
	mu    sync.Mutex
	calls int
	last  []byte
}

func (f *fakeSink) Enqueue(topic string, payload []byte) {
	f.mu.Lock()
	f.calls++
	f.last = payload
	f.mu.Unlock()
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCoerceImageGrayscale2D(t *testing.T) {
	arr := wire.NewUint8Array([]int{2, 3}, []byte{1, 2, 3, 4, 5, 6})
	img, ok := coerceImage(arr)
	if !ok {
		t.Fatal("coerceImage rejected a valid grayscale 2-D array")
	}
	b := img.Bounds()
	if b.Dx() != 3 || b.Dy() != 2 {
		t.Errorf("bounds = %v, want 3x2", b)
	}
}

func TestCoerceImageRGB3D(t *testing.T) {
	arr := wire.NewUint8Array([]int{2, 2, 3}, []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 255, 255, 255,
	})
	img, ok := coerceImage(arr)
	if !ok {
		t.Fatal("coerceImage rejected a valid RGB 3-D array")
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	// input pixel (0,0) is R=255,G=0,B=0; BGR swap publishes it with R/B
	// exchanged, so the decoded image.Image should read back as blue.
	if r>>8 != 0 || g>>8 != 0 || b>>8 != 255 {
		t.Errorf("pixel(0,0) = (%d,%d,%d), want (0,0,255) after BGR swap", r>>8, g>>8, b>>8)
	}
}

func TestCoerceImageRejectsOtherRanksAndDtypes(t *testing.T) {
	if _, ok := coerceImage(wire.NewUint8Array([]int{5}, make([]byte, 5))); ok {
		t.Error("1-D array should be rejected")
	}
	if _, ok := coerceImage(wire.NewFloat32Array([]int{2, 2}, []float32{0, 0, 0, 0})); ok {
		t.Error("non-uint8 dtype should be rejected")
	}
	if _, ok := coerceImage(wire.NewUint8Array([]int{2, 2, 4}, make([]byte, 16))); ok {
		t.Error("4-channel array should be rejected")
	}
}

func TestLookupPathDotted(t *testing.T) {
	obs := map[string]wire.Value{
		"cameras": wire.Map(map[string]wire.Value{
			"left": wire.NdArrayValue(wire.NewUint8Array([]int{1, 1}, []byte{7})),
		}),
	}
	v, ok := lookupPath(obs, "cameras.left")
	if !ok {
		t.Fatal("lookupPath did not resolve cameras.left")
	}
	arr, ok := v.AsNdArray()
	if !ok || arr.Data[0] != 7 {
		t.Errorf("resolved value = %v, want ndarray with data[0]=7", v)
	}
	if _, ok := lookupPath(obs, "cameras.right"); ok {
		t.Error("lookupPath resolved a nonexistent path")
	}
}

func TestWorkerEncodesAndThrottles(t *testing.T) {
	sink := &fakeSink{}
	w, err := NewWorker("left", "left", 80, 50*time.Millisecond, sink)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	img := wire.NewUint8Array([]int{2, 2}, []byte{1, 2, 3, 4})
	obs := map[string]wire.Value{"left": wire.NdArrayValue(img)}

	w.Submit(obs)
	time.Sleep(20 * time.Millisecond)
	w.Submit(obs) // arrives before min_interval elapses: should be throttled away
	time.Sleep(20 * time.Millisecond)

	if sink.count() != 1 {
		t.Errorf("sink received %d frames, want 1 (second submit throttled)", sink.count())
	}
}

func TestPublisherEnqueueDropsOnFullQueue(t *testing.T) {
	p := NewPublisher(1)
	p.Enqueue("cam", []byte("a"))
	p.Enqueue("cam", []byte("b")) // queue depth 1: this one is dropped, not blocked
	select {
	case msg := <-p.queue:
		if string(msg.payload) != "a" {
			t.Errorf("queued payload = %q, want %q", msg.payload, "a")
		}
	default:
		t.Fatal("expected one queued message")
	}
	select {
	case <-p.queue:
		t.Fatal("expected queue to be empty after dropping the second enqueue")
	default:
	}
}
