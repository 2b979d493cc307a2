package camera

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/brainbot-robotics/brainbot/internal/logger"
)

// frameMsg is one (topic, payload) pair queued for fan-out (§4.6, §6 "bound
// PUB socket emits multipart [topic_bytes, payload_bytes]").
type frameMsg struct {
	topic   string
	payload []byte
}

// Publisher is the camera pub/sub hub: one publisher goroutine dequeues
// frames from a shared bounded queue and fans them out to every connected
// browser observer over its own bounded, drop-on-backpressure channel
// (§4.6, §5 "one publisher thread").
type Publisher struct {
	queue chan frameMsg

	mu      sync.Mutex
	clients map[*client]struct{}

	ln net.Listener
}

type client struct {
	send chan frameMsg
}

// NewPublisher builds a Publisher with a queue of the given depth.
func NewPublisher(queueDepth int) *Publisher {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Publisher{
		queue:   make(chan frameMsg, queueDepth),
		clients: make(map[*client]struct{}),
	}
}

// Enqueue implements Sink: non-blocking, drops the frame if the shared
// queue is full (§4.6 "sends non-blocking (drop on back-pressure)").
func (p *Publisher) Enqueue(topic string, payload []byte) {
	select {
	case p.queue <- frameMsg{topic: topic, payload: payload}:
	default:
		logger.Warn("camera: publisher queue full, dropping frame", "topic", topic)
	}
}

// Run starts the HTTP/websocket listener on addr and drains the queue until
// ctx is cancelled.
func (p *Publisher) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	p.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/cameras", p.handleWS)
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go p.drain(ctx)

	if err := srv.Serve(ln); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func (p *Publisher) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			p.broadcast(msg)
		}
	}
}

func (p *Publisher) broadcast(msg frameMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.clients {
		select {
		case c.send <- msg:
		default:
			// per-client backpressure: drop rather than block the fan-out.
		}
	}
}

func (p *Publisher) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Warn("camera: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	c := &client{send: make(chan frameMsg, 16)}
	p.mu.Lock()
	p.clients[c] = struct{}{}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.clients, c)
		p.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageBinary, framedPayload(msg)); err != nil {
				return
			}
		}
	}
}

// framedPayload prefixes payload with its topic so a single websocket
// stream can multiplex every camera source, matching the "multipart
// [topic_bytes, payload_bytes]" framing from §6 without a second socket.
func framedPayload(msg frameMsg) []byte {
	topic := []byte(msg.topic)
	out := make([]byte, 1+len(topic)+len(msg.payload))
	out[0] = byte(len(topic))
	copy(out[1:], topic)
	copy(out[1+len(topic):], msg.payload)
	return out
}
