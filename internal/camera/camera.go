package camera

import (
	"context"
	"time"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// Source describes one configured camera feed (§6 camera_stream.sources).
type Source struct {
	Name        string
	Path        string // dotted lookup path into the observation, e.g. "cameras.left"
	Quality     int
	MinInterval time.Duration
}

// Stream owns one Worker per configured Source plus the shared Publisher,
// and satisfies edge.CameraPublisher so the edge loop can forward raw robot
// frames to it without depending on this package directly.
type Stream struct {
	publisher *Publisher
	workers   []*Worker
}

// NewStream builds a Stream. defaultQuality is used for any source with
// Quality <= 0.
func NewStream(sources []Source, defaultQuality, queueDepth int) (*Stream, error) {
	pub := NewPublisher(queueDepth)
	s := &Stream{publisher: pub}
	for _, src := range sources {
		q := src.Quality
		if q <= 0 {
			q = defaultQuality
		}
		w, err := NewWorker(src.Name, src.Path, q, src.MinInterval, pub)
		if err != nil {
			return nil, err
		}
		s.workers = append(s.workers, w)
	}
	return s, nil
}

// Run starts every worker and the publisher's websocket listener. Blocks
// until ctx is cancelled.
func (s *Stream) Run(ctx context.Context, addr string) error {
	for _, w := range s.workers {
		go w.Run(ctx)
	}
	return s.publisher.Run(ctx, addr)
}

// Publish forwards the raw robot sub-mapping to every configured worker
// (§4.5 step 3: "forward the raw robot sub-mapping to it (non-blocking;
// failures logged)"). Submit itself never blocks on encode/IO, so this
// never blocks the edge loop's tick.
func (s *Stream) Publish(robot map[string]wire.Value) error {
	for _, w := range s.workers {
		w.Submit(robot)
	}
	return nil
}
