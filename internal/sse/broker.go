// Package sse implements a Server-Sent Events broker that acts as the
// presentation surface for the aggregated TODO view.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/starford/ntoes/internal/checksum"
	"github.com/starford/ntoes/internal/engine"
	"github.com/starford/ntoes/internal/syncer"
)

// Event types sent to clients.
const (
	EventTodoReplaced  = "todo.replaced"
	EventNoteSaved     = "note.saved"
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// TodoView is the payload of todo.replaced.
type TodoView struct {
	View     string `json:"view"`
	Checksum string `json:"checksum"`
}

// SyncOutcome is the payload of sync.completed and sync.failed.
type SyncOutcome struct {
	CommittedLocal bool     `json:"committed_local"`
	CommittedMerge bool     `json:"committed_merge"`
	Conflicts      bool     `json:"conflicts"`
	ConflictFiles  []string `json:"conflict_files,omitempty"`
	Pushed         bool     `json:"pushed"`
	LocalOnly      bool     `json:"local_only"`
	FailedOp       string   `json:"failed_op,omitempty"`
	Error          string   `json:"error,omitempty"`
	Output         string   `json:"output,omitempty"`
}

var (
	_ engine.Surface  = (*Broker)(nil)
	_ engine.Notifier = (*Broker)(nil)
)

// Broker manages SSE client connections, holds the current aggregated view
// and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + current view). Public methods communicate with this loop
// through channels, so no mutexes are required. Replace never blocks: the
// latest text is parked in an atomic slot and the loop picks it up.
type Broker struct {
	alwaysObserved bool

	pending    atomic.Pointer[string]
	replaceSig chan struct{}

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int
	snapshotReqCh chan chan TodoView

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. With alwaysObserved set, Observed
// reports true even without connected clients.
func NewBroker(alwaysObserved bool) *Broker {
	b := &Broker{
		alwaysObserved: alwaysObserved,
		replaceSig:     make(chan struct{}, 1),
		subscribeCh:    make(chan chan []byte),
		unsubscribeCh:  make(chan chan []byte),
		publishCh:      make(chan Event, 256),
		countReqCh:     make(chan chan int),
		snapshotReqCh:  make(chan chan TodoView),
		stopCh:         make(chan struct{}),
		stopped:        make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) []byte {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var current TodoView

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Client buffer full; skip to avoid blocking broker loop.
		}
	}

	broadcast := func(event Event) {
		raw := encode(event)
		if raw == nil {
			return
		}
		for ch := range clients {
			send(ch, raw)
		}
	}

	// applyPending installs the most recent Replace text, if any.
	applyPending := func() {
		p := b.pending.Swap(nil)
		if p == nil {
			return
		}
		sum := checksum.Sum([]byte(*p))
		if sum == current.Checksum {
			return
		}
		current = TodoView{View: *p, Checksum: sum}
		broadcast(Event{Type: EventTodoReplaced, Data: current})
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			applyPending()
			clients[ch] = struct{}{}
			if current.Checksum != "" {
				send(ch, encode(Event{Type: EventTodoReplaced, Data: current}))
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case <-b.replaceSig:
			applyPending()

		case event := <-b.publishCh:
			broadcast(event)

		case resp := <-b.countReqCh:
			resp <- len(clients)

		case resp := <-b.snapshotReqCh:
			applyPending()
			resp <- current
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. The current view, if
// any, is the first message on it.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Observed reports whether a client is connected (or the broker was told to
// always count as observed).
func (b *Broker) Observed() bool {
	return b.alwaysObserved || b.ClientCount() > 0
}

// Replace sets the aggregated view. Text identical to the current view is
// not re-broadcast.
func (b *Broker) Replace(text string) {
	if b.closed.Load() {
		return
	}
	b.pending.Store(&text)
	select {
	case b.replaceSig <- struct{}{}:
	default:
	}
}

// Snapshot returns the current view and its checksum.
func (b *Broker) Snapshot() TodoView {
	if b.closed.Load() {
		return TodoView{}
	}

	resp := make(chan TodoView, 1)
	select {
	case b.snapshotReqCh <- resp:
	case <-b.stopped:
		return TodoView{}
	}

	select {
	case v := <-resp:
		return v
	case <-b.stopped:
		return TodoView{}
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// NoteSaved publishes note.saved for path.
func (b *Broker) NoteSaved(path string) {
	b.Publish(Event{Type: EventNoteSaved, Data: map[string]string{"path": path}})
}

// SyncFinished publishes the outcome of a sync cycle.
func (b *Broker) SyncFinished(res syncer.Result, err error) {
	out := SyncOutcome{
		CommittedLocal: res.CommittedLocal,
		CommittedMerge: res.CommittedMerge,
		Conflicts:      res.Conflicts,
		ConflictFiles:  res.ConflictFiles,
		Pushed:         res.Pushed,
		LocalOnly:      res.LocalOnly,
	}
	if err == nil {
		b.Publish(Event{Type: EventSyncCompleted, Data: out})
		return
	}
	out.Error = err.Error()
	out.Output = res.Output
	if f, ok := syncer.AsFailure(err); ok {
		out.FailedOp = f.Op
	}
	b.Publish(Event{Type: EventSyncFailed, Data: out})
}

// ServeHTTP is the SSE endpoint handler (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
