package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type gateSink struct {
	gate  chan struct{}
	count atomic.Int64
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
	s.count.Add(1)
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	if d := NewDispatcher(Config{Enabled: false}, NoOpSink{}); d != nil {
		t.Fatalf("expected nil dispatcher when disabled")
	}
	var d *Dispatcher
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatalf("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked sink and buffer 1")
	}

	close(sink.gate)
	d.Close()

	if got := sink.count.Load() + int64(d.Dropped()); got != 10 {
		t.Fatalf("delivered+dropped = %d, want 10", got)
	}
}

func TestDispatcherBlockingHonorsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	// One event is held by the sink, one fills the buffer.
	d.Emit(context.Background(), Event{})
	d.Emit(context.Background(), Event{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Emit did not return after context deadline")
	}
}

func TestDispatcherCloseDrains(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "logout_all"})
	}
	d.Close()

	if n := len(sink.Events()); n != 5 {
		t.Fatalf("expected 5 drained events, got %d", n)
	}
	d.Emit(context.Background(), Event{EventType: "late"})
	if n := len(sink.Events()); n != 5 {
		t.Fatalf("emit after close must be ignored")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "family_revoked", FamilyID: "F1"})
	sink.Emit(context.Background(), Event{EventType: "logout_all", UserID: "u1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.FamilyID != "F1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(log)

	sink.Emit(context.Background(), Event{EventType: "refresh_reuse_detected", FamilyID: "F1", Success: false, Error: "REUSE_DETECTED"})
	sink.Emit(context.Background(), Event{EventType: "refresh_success", Success: true, Metadata: map[string]string{"mobile_type": "IOS"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["level"] != "WARN" || first["msg"] != "refresh_reuse_detected" || first["family_id"] != "F1" {
		t.Fatalf("unexpected first record: %v", first)
	}
	if second["level"] != "INFO" || second["meta.mobile_type"] != "IOS" {
		t.Fatalf("unexpected second record: %v", second)
	}
}

// recordingGate holds every delivery until gate is closed and records the
// event types in delivery order.
type recordingGate struct {
	gate    chan struct{}
	entered chan struct{}
	mu      sync.Mutex
	types   []string
}

func newRecordingGate() *recordingGate {
	return &recordingGate{gate: make(chan struct{}), entered: make(chan struct{}, 64)}
}

func (s *recordingGate) Emit(_ context.Context, event Event) {
	s.entered <- struct{}{}
	<-s.gate
	s.mu.Lock()
	s.types = append(s.types, event.EventType)
	s.mu.Unlock()
}

func (s *recordingGate) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.types...)
}

func TestDispatcherDropIfFullKeepsSecurityEvents(t *testing.T) {
	sink := newRecordingGate()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	d.Emit(context.Background(), Event{EventType: "refresh_success"})
	<-sink.entered
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
	}
	if d.Dropped() != 9 {
		t.Fatalf("expected 9 routine drops, got %d", d.Dropped())
	}

	d.Emit(context.Background(), Event{EventType: "refresh_reuse_detected", Security: true})
	if d.Dropped() != 9 || d.SecurityDropped() != 0 {
		t.Fatalf("security event was shed: dropped=%d security=%d", d.Dropped(), d.SecurityDropped())
	}

	close(sink.gate)
	d.Close()

	got := sink.delivered()
	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %v", got)
	}
	// The held event finishes first; the security event overtakes the buffered one.
	if got[1] != "refresh_reuse_detected" {
		t.Fatalf("security event should be delivered ahead of the backlog, got %v", got)
	}
}

func TestDispatcherSecurityLaneHonorsContext(t *testing.T) {
	sink := newRecordingGate()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, SecurityBufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	// One security event is held by the sink, one fills the lane.
	d.Emit(context.Background(), Event{EventType: "refresh_token_mismatch", Security: true})
	<-sink.entered
	d.Emit(context.Background(), Event{EventType: "refresh_token_mismatch", Security: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{EventType: "refresh_reuse_detected", Security: true})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("security Emit did not return after context deadline")
	}
	if d.SecurityDropped() != 1 || d.Dropped() != 1 {
		t.Fatalf("expected one abandoned security event, got security=%d dropped=%d", d.SecurityDropped(), d.Dropped())
	}
}

func TestSlogSinkSecurityEventsLogAtError(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.Emit(context.Background(), Event{EventType: "refresh_reuse_detected", Security: true, FamilyID: "F1"})

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["level"] != "ERROR" || rec["security"] != true {
		t.Fatalf("unexpected record: %v", rec)
	}
}
