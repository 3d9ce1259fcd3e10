package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/ntoes/internal/syncer"
)

func recv(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestObserved(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()
	if b.Observed() {
		t.Fatal("observed with no clients")
	}
	ch := b.Subscribe()
	if !b.Observed() {
		t.Fatal("not observed with a client")
	}
	b.Unsubscribe(ch)
	if b.Observed() {
		t.Fatal("still observed after unsubscribe")
	}

	always := NewBroker(true)
	defer always.Close()
	if !always.Observed() {
		t.Fatal("alwaysObserved broker reports unobserved")
	}
}

func TestReplaceBroadcastsView(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Replace("# a.md\n\n[ ] x\n\n")

	s := recv(t, ch)
	if !strings.Contains(s, "event: todo.replaced") {
		t.Errorf("missing event type in %q", s)
	}
	if !strings.Contains(s, `"view":"# a.md\n\n[ ] x\n\n"`) {
		t.Errorf("missing view in %q", s)
	}
}

func TestReplaceSameTextNotRebroadcast(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Replace("same")
	recv(t, ch)
	b.Replace("same")
	b.Replace("same")

	if msgs := drain(ch); len(msgs) != 0 {
		t.Errorf("duplicate view re-broadcast: %v", msgs)
	}
}

func TestSnapshotReflectsLatestReplace(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()
	if v := b.Snapshot(); v.View != "" || v.Checksum != "" {
		t.Fatalf("initial snapshot = %+v", v)
	}
	b.Replace("one")
	b.Replace("two")
	v := b.Snapshot()
	if v.View != "two" || v.Checksum == "" {
		t.Errorf("snapshot = %+v, want view two", v)
	}
}

func TestSubscribeReceivesCurrentView(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()
	b.Replace("[ ] already there\n")

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	if s := recv(t, ch); !strings.Contains(s, "already there") {
		t.Errorf("first message = %q", s)
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.NoteSaved("/notes/a.md")

	s := recv(t, ch)
	if !strings.Contains(s, "event: note.saved") {
		t.Errorf("missing event type in %q", s)
	}
	if !strings.Contains(s, `"path":"/notes/a.md"`) {
		t.Errorf("missing data in %q", s)
	}
}

func TestSyncFinished(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.SyncFinished(syncer.Result{CommittedLocal: true, Pushed: true}, nil)
	s := recv(t, ch)
	if !strings.Contains(s, "event: sync.completed") || !strings.Contains(s, `"pushed":true`) {
		t.Errorf("completed = %q", s)
	}

	fail := &syncer.SyncFailure{Op: "push", Output: "rejected", Err: errors.New("exit status 1")}
	b.SyncFinished(syncer.Result{Output: "$ git push\nrejected"}, fail)
	s = recv(t, ch)
	if !strings.Contains(s, "event: sync.failed") || !strings.Contains(s, `"failed_op":"push"`) {
		t.Errorf("failed = %q", s)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Replace("[ ] from handler\n")
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: todo.replaced") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(false)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(false)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Replace("x")
	b.NoteSaved("x.md")
	if v := b.Snapshot(); v.View != "" {
		t.Errorf("snapshot after close = %+v", v)
	}
}
