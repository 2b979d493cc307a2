package camera

import (
	"bytes"
	"context"
	"image/jpeg"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/brainbot-robotics/brainbot/internal/logger"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// Sink receives encoded frames for fan-out (implemented by Publisher).
type Sink interface {
	Enqueue(topic string, payload []byte)
}

// Worker owns one camera source's one-slot buffer and condition variable
// (§4.6, §5 "one worker thread per camera source"). submit overwrites the
// slot and signals; the run loop pops the latest frame, drops it if it
// arrived before min_interval has elapsed since the last emission (via a
// token-bucket limiter rather than hand-tracked timestamps), JPEG-encodes
// it, and enqueues the resulting envelope.
type Worker struct {
	name    string
	path    string
	quality int
	limiter *rate.Limiter
	sink    Sink
	codec   *wire.Codec

	mu     sync.Mutex
	cond   *sync.Cond
	slot   wire.NdArray
	hasNew bool
	closed bool
}

// NewWorker builds a Worker. quality is the JPEG quality: values <= 0 select
// 80, values above 100 are clamped to 100 at encode time.
// minInterval <= 0 disables throttling (every submitted frame is encoded).
func NewWorker(name, path string, quality int, minInterval time.Duration, sink Sink) (*Worker, error) {
	if quality <= 0 {
		quality = 80
	}
	var limiter *rate.Limiter
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	codec, err := wire.NewCodec(0)
	if err != nil {
		return nil, err
	}
	w := &Worker{name: name, path: path, quality: quality, limiter: limiter, sink: sink, codec: codec}
	w.cond = sync.NewCond(&w.mu)
	return w, nil
}

// Submit overwrites the worker's one-slot buffer with the observation's
// value at Path and wakes the run loop. Non-blocking from the caller's
// perspective: it never waits on the worker.
func (w *Worker) Submit(obs map[string]wire.Value) {
	v, ok := lookupPath(obs, w.path)
	if !ok {
		return
	}
	arr, ok := v.AsNdArray()
	if !ok {
		return
	}
	w.mu.Lock()
	w.slot = arr
	w.hasNew = true
	w.cond.Signal()
	w.mu.Unlock()
}

// Run drives the worker loop until ctx is cancelled (§5 "condition-variable
// waits in the camera worker" is the only blocking point besides encode).
func (w *Worker) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		w.mu.Lock()
		w.closed = true
		w.cond.Broadcast()
		w.mu.Unlock()
	}()

	for {
		w.mu.Lock()
		for !w.hasNew && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		arr := w.slot
		w.hasNew = false
		w.mu.Unlock()

		if w.limiter != nil && !w.limiter.Allow() {
			continue
		}

		frame, ok := w.encode(arr)
		if !ok {
			continue
		}
		payload, err := w.codec.Encode(frame.ToValue())
		if err != nil {
			logger.Warn("camera: envelope encode failed", "source", w.name, "err", err)
			continue
		}
		w.sink.Enqueue(w.name, payload)
	}
}

func (w *Worker) encode(arr wire.NdArray) (Frame, bool) {
	img, ok := coerceImage(arr)
	if !ok {
		return Frame{}, false
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(w.quality)}); err != nil {
		logger.Warn("camera: jpeg encode failed", "source", w.name, "err", err)
		return Frame{}, false
	}
	b := img.Bounds()
	return Frame{
		Camera:     w.name,
		TimestampS: float64(time.Now().UnixNano()) / 1e9,
		Encoding:   "jpeg",
		Width:      uint16(b.Dx()),
		Height:     uint16(b.Dy()),
		Quality:    uint8(clampQuality(w.quality)),
		Data:       buf.Bytes(),
	}, true
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
