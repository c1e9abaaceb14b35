// Package services holds the application-level glue between the upload
// engine and its clients.
package services

import (
	"time"

	"github.com/shashiranjanraj/upbridge/pkg/callback"
	"github.com/shashiranjanraj/upbridge/pkg/logger"
	"github.com/shashiranjanraj/upbridge/pkg/uploader"
)

// Publisher delivers one named event to connected clients. ws.Hub and
// sse.Broker both satisfy it.
type Publisher interface {
	Publish(event string, data any) error
}

// FileEvent is the payload of every per-file event.
type FileEvent struct {
	ID       int             `json:"id"`
	Name     string          `json:"name,omitempty"`
	From     uploader.Status `json:"from,omitempty"`
	To       uploader.Status `json:"to,omitempty"`
	Uploaded int64           `json:"uploaded,omitempty"`
	Total    int64           `json:"total,omitempty"`
	Response callback.Record `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
	At       time.Time       `json:"at"`
}

// BatchEvent is the payload of allComplete.
type BatchEvent struct {
	Succeeded []int     `json:"succeeded"`
	Failed    []int     `json:"failed"`
	At        time.Time `json:"at"`
}

// Notifier forwards engine callbacks to publishers. Its handlers never
// return false, so they cannot stop other sync handlers.
type Notifier struct {
	pubs    []Publisher
	up      *uploader.Uploader
	handles map[string]*callback.Handle
}

// NewNotifier returns a notifier writing to pubs.
func NewNotifier(pubs ...Publisher) *Notifier {
	return &Notifier{pubs: pubs, handles: map[string]*callback.Handle{}}
}

// Attach registers the notifier's handlers on up.
func (n *Notifier) Attach(up *uploader.Uploader) {
	n.up = up

	n.on(callback.OnStatusChange, func(args ...any) any {
		from, _ := arg[uploader.Status](args, 1)
		to, _ := arg[uploader.Status](args, 2)
		n.publish("statusChange", FileEvent{ID: id(args), From: from, To: to, At: time.Now()})
		return nil
	})
	n.on(callback.OnProgress, func(args ...any) any {
		name, _ := arg[string](args, 1)
		done, _ := arg[int64](args, 2)
		total, _ := arg[int64](args, 3)
		n.publish("progress", FileEvent{ID: id(args), Name: name, Uploaded: done, Total: total, At: time.Now()})
		return nil
	})
	n.on(callback.OnComplete, func(args ...any) any {
		name, _ := arg[string](args, 1)
		resp, _ := arg[callback.Record](args, 2)
		ev := FileEvent{ID: id(args), Name: name, Response: resp, At: time.Now()}
		if err, ok := arg[error](args, 3); ok && err != nil {
			ev.Error = err.Error()
		}
		n.publish("complete", ev)
		return nil
	})
	n.on(callback.OnError, func(args ...any) any {
		name, _ := arg[string](args, 1)
		reason, _ := arg[string](args, 2)
		n.publish("error", FileEvent{ID: id(args), Name: name, Error: reason, At: time.Now()})
		return nil
	})
	n.on(callback.OnDeleteComplete, func(args ...any) any {
		ev := FileEvent{ID: id(args), At: time.Now()}
		if err, ok := arg[error](args, 1); ok && err != nil {
			ev.Error = err.Error()
		}
		n.publish("deleteComplete", ev)
		return nil
	})
	n.on(callback.OnAllComplete, func(args ...any) any {
		ok, _ := arg[[]int](args, 0)
		failed, _ := arg[[]int](args, 1)
		n.publish("allComplete", BatchEvent{Succeeded: ok, Failed: failed, At: time.Now()})
		return nil
	})
}

// Detach removes every handler Attach registered.
func (n *Notifier) Detach() {
	if n.up == nil {
		return
	}
	for event, h := range n.handles {
		n.up.Off(event, h)
	}
	n.handles = map[string]*callback.Handle{}
	n.up = nil
}

func (n *Notifier) on(event string, h callback.Handler) {
	n.handles[event] = n.up.On(event, h)
}

func (n *Notifier) publish(event string, data any) {
	for _, p := range n.pubs {
		if err := p.Publish(event, data); err != nil {
			logger.Warn("notifier: publish failed", "event", event, "error", err)
		}
	}
}

func id(args []any) int {
	v, _ := arg[int](args, 0)
	return v
}

// arg returns args[i] as T.
func arg[T any](args []any, i int) (T, bool) {
	var zero T
	if i >= len(args) {
		return zero, false
	}
	v, ok := args[i].(T)
	return v, ok
}
