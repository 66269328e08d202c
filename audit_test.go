package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auth "github.com/realchillguyclub/backend-sub000"
)

func auditConfig(buffer int, dropIfFull bool) auth.Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = buffer
	cfg.Audit.DropIfFull = dropIfFull
	return cfg
}

func nextEvent(t *testing.T, sink *auth.ChannelSink) auth.AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return auth.AuditEvent{}
	}
}

func TestAuditReissueLifecycleEvents(t *testing.T) {
	sink := auth.NewChannelSink(16)
	f := newEngine(t, func(b *auth.Builder) {
		b.WithConfig(auditConfig(16, false)).WithAuditSink(sink)
	})
	ctx := auth.WithClientIP(context.Background(), "198.51.100.4")

	pair := f.issue(t, "u1", "desktop")
	ev := nextEvent(t, sink)
	if ev.EventType != "session_issued" || !ev.Success || ev.UserID != "u1" || ev.FamilyID == "" {
		t.Fatalf("unexpected issue event: %+v", ev)
	}
	family := ev.FamilyID

	if _, err := f.engine.Reissue(ctx, pair.RefreshToken, ""); err != nil {
		t.Fatalf("reissue: %v", err)
	}
	ev = nextEvent(t, sink)
	if ev.EventType != "refresh_success" || ev.FamilyID != family || ev.IP != "198.51.100.4" {
		t.Fatalf("unexpected refresh event: %+v", ev)
	}
	if ev.Metadata["reissue_count"] != "1" {
		t.Fatalf("expected reissue_count=1, got %+v", ev.Metadata)
	}

	f.clock.Advance(10 * time.Second)
	_, _ = f.engine.Reissue(ctx, pair.RefreshToken, "")
	ev = nextEvent(t, sink)
	if ev.EventType != "refresh_reuse_detected" || ev.Success || ev.Error != "REUSE_DETECTED" {
		t.Fatalf("unexpected reuse event: %+v", ev)
	}
	if ev.FamilyID != family || ev.UserID != "u1" {
		t.Fatalf("reuse event must carry the family and user: %+v", ev)
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := auth.NewChannelSink(4)
	f := newEngine(t, func(b *auth.Builder) { b.WithAuditSink(sink) })
	f.issue(t, "u1", "desktop")

	select {
	case ev := <-sink.Events():
		t.Fatalf("audit disabled but got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, auth.AuditEvent) {
	<-s.gate
}

func TestAuditDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	f := newEngine(t, func(b *auth.Builder) {
		b.WithConfig(auditConfig(1, true)).WithAuditSink(sink)
	})
	defer close(sink.gate)

	for i := 0; i < 10; i++ {
		f.issue(t, "u1", "desktop")
	}
	// One event is blocked in the sink and one sits in the buffer.
	if dropped := f.engine.AuditDropped(); dropped < 8 {
		t.Fatalf("expected at least 8 dropped events, got %d", dropped)
	}
}

type recordingGateSink struct {
	gate  chan struct{}
	mu    sync.Mutex
	types []string
}

func (s *recordingGateSink) Emit(_ context.Context, ev auth.AuditEvent) {
	<-s.gate
	s.mu.Lock()
	s.types = append(s.types, ev.EventType)
	s.mu.Unlock()
}

func TestAuditReuseSurvivesFullBuffer(t *testing.T) {
	sink := &recordingGateSink{gate: make(chan struct{})}
	f := newEngine(t, func(b *auth.Builder) {
		b.WithConfig(auditConfig(1, true)).WithAuditSink(sink)
	})
	ctx := context.Background()

	pair := f.issue(t, "u1", "desktop")
	for i := 0; i < 8; i++ {
		f.issue(t, "u2", "desktop")
	}
	if _, err := f.engine.Reissue(ctx, pair.RefreshToken, ""); err != nil {
		t.Fatalf("reissue: %v", err)
	}
	droppedBefore := f.engine.AuditDropped()
	if droppedBefore == 0 {
		t.Fatalf("expected the routine buffer to overflow")
	}

	f.clock.Advance(10 * time.Second)
	if _, err := f.engine.Reissue(ctx, pair.RefreshToken, ""); !errors.Is(err, auth.ErrReuseDetected) {
		t.Fatalf("expected reuse, got %v", err)
	}
	if got := f.engine.AuditDropped(); got != droppedBefore {
		t.Fatalf("reuse event was dropped: %d -> %d", droppedBefore, got)
	}

	close(sink.gate)
	f.engine.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, typ := range sink.types {
		if typ == "refresh_reuse_detected" {
			found = true
		}
	}
	if !found {
		t.Fatalf("reuse event not delivered: %v", sink.types)
	}
}
