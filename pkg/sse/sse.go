// Package sse streams upload events over Server-Sent Events, for clients
// that prefer EventSource to a WebSocket.
//
//	broker := sse.NewBroker()
//	r.Get("/api/events/stream", "events.sse", broker.ServeHTTP)
//	broker.Publish("progress", payload)
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// heartbeat keeps idle proxies from closing the stream.
const heartbeat = 25 * time.Second

// Stream represents an active SSE connection to one client.
type Stream struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher
}

// New creates an SSE stream and sets the required headers.
// Returns nil if the ResponseWriter does not support flushing.
func New(w http.ResponseWriter, r *http.Request) *Stream {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, r: r, flusher: flusher}
}

// write sends one pre-encoded event.
func (s *Stream) write(event string, payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Comment writes an SSE comment (used as the keepalive heartbeat).
func (s *Stream) Comment(msg string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", msg); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

type message struct {
	event   string
	payload []byte
}

// Broker fans published events out to every connected stream.
type Broker struct {
	mu   sync.Mutex
	subs map[chan message]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewBroker returns a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{subs: map[chan message]struct{}{}, done: make(chan struct{})}
}

// Close ends every open stream. Streams opened afterwards return at once.
func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Publish encodes data once and offers it to every subscriber. Subscribers
// whose buffer is full miss the event.
func (b *Broker) Publish(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal %s: %w", event, err)
	}
	msg := message{event: event, payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of connected streams.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) subscribe() chan message {
	ch := make(chan message, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan message) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// ServeHTTP holds the request open and streams events until the client
// goes away.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stream := New(w, r)
	if stream == nil {
		return
	}
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-b.done:
			return
		case msg := <-ch:
			if err := stream.write(msg.event, msg.payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := stream.Comment("keepalive"); err != nil {
				return
			}
		}
	}
}
