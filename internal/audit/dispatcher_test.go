package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatalf("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatalf("nil dispatcher must report zero counters")
	}
}

func TestDispatcherDeliversBeforeClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success", AccountID: "acct-1"})
	}
	d.Close()

	if got := d.Delivered(); got != 3 {
		t.Fatalf("expected 3 delivered, got %d", got)
	}
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sink.Events():
			if ev.AccountID != "acct-1" {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// first event parks in the sink, second fills the buffer
	d.Emit(context.Background(), Event{EventType: "a"})
	deadline := time.Now().Add(time.Second)
	for len(d.ch) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), Event{EventType: "b"})
	d.Emit(context.Background(), Event{EventType: "c"})

	if d.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", d.Dropped())
	}
	close(sink.gate)
	d.Close()
}

func TestEmitAfterCloseIsIgnored(t *testing.T) {
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Close()
	d.Emit(context.Background(), Event{EventType: "late"})
	if d.Delivered() != 0 {
		t.Fatalf("expected nothing delivered after close")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	NewJSONWriterSink(&buf).Emit(context.Background(), Event{EventType: "logout", AccountID: "acct-9", Success: true})

	var decoded map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["event_type"] != "logout" || decoded["account_id"] != "acct-9" {
		t.Fatalf("unexpected json: %s", buf.String())
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login_failure", Origin: "10.0.0.1", Error: "invalid_credentials"})
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "event=login_failure") {
		t.Fatalf("unexpected log line: %s", out)
	}
	if !strings.Contains(out, "origin=10.0.0.1") {
		t.Fatalf("origin missing: %s", out)
	}
}
