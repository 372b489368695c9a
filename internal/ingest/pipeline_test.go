package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/liqoracle/internal/models"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []models.LiquidationEvent
	failOn string
}

func (r *fakeRecorder) Record(_ context.Context, ev models.LiquidationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Ticker == r.failOn {
		return errors.New("database is locked")
	}
	r.events = append(r.events, ev)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, a models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, a)
	return nil
}

type fakeSource struct {
	history []Message
	err     error
}

func (s *fakeSource) Recent(context.Context, int) ([]Message, error) {
	return s.history, s.err
}

func (s *fakeSource) Listen(context.Context, func(Message)) error { return nil }

var ts = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func TestPipeline_Handle(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantEvents int
	}{
		{"liquidation", "#BTC Long Liquidation: $1,250.50", 1},
		{"chatter", "gm everyone", 0},
		{"zero amount rejected", "#BTC Long Liquidation: $0", 0},
		{"malformed amount rejected", "#BTC Long Liquidation: $5K", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			p := NewPipeline(rec, nil, 0)
			if err := p.Handle(context.Background(), Message{Text: tt.text, Timestamp: ts}); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if len(rec.events) != tt.wantEvents {
				t.Errorf("recorded %d events, want %d", len(rec.events), tt.wantEvents)
			}
		})
	}
}

func TestPipeline_HandleNormalizesEvent(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, nil, 0)
	local := time.FixedZone("UTC+3", 3*3600)

	if err := p.Handle(context.Background(), Message{Text: "#eth SHORT Liquidation: $2k", Timestamp: ts.In(local)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(rec.events))
	}
	got := rec.events[0]
	if got.Ticker != "ETH" || got.Direction != models.Short || got.Amount != 2000 || !got.Timestamp.Equal(ts) {
		t.Errorf("recorded %+v", got)
	}
	if rec.events[0].Timestamp.Location() != time.UTC {
		t.Errorf("timestamp not normalized to UTC")
	}
}

func TestPipeline_SingleEventThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		text      string
		wantSent  int
	}{
		{"disabled", 0, "#BTC Long Liquidation: $1M", 0},
		{"below", 100000, "#BTC Long Liquidation: $99,999", 0},
		{"equal", 100000, "#BTC Long Liquidation: $100k", 1},
		{"above", 100000, "#BTC Short Liquidation: $1.5M", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{}
			p := NewPipeline(&fakeRecorder{}, n, tt.threshold)
			if err := p.Handle(context.Background(), Message{Text: tt.text, Timestamp: ts}); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			p.Wait()
			if len(n.alerts) != tt.wantSent {
				t.Errorf("sent %d alerts, want %d", len(n.alerts), tt.wantSent)
			}
		})
	}
}

func TestPipeline_NotificationFailureIsNotAnError(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, &fakeNotifier{err: errors.New("timeout")}, 1)
	if err := p.Handle(context.Background(), Message{Text: "#BTC Long Liquidation: $10k", Timestamp: ts}); err != nil {
		t.Errorf("Handle returned %v, want nil when only the alert fails", err)
	}
	p.Wait()
	if len(rec.events) != 1 {
		t.Errorf("event should still be recorded")
	}
}

func TestPipeline_StoreFailureIsolatedPerMessage(t *testing.T) {
	rec := &fakeRecorder{failOn: "BAD"}
	p := NewPipeline(rec, nil, 0)
	ctx := context.Background()

	if err := p.Handle(ctx, Message{ID: 7, Text: "#BAD Long Liquidation: $10k", Timestamp: ts}); err == nil {
		t.Error("expected store error to be returned")
	}
	if err := p.Handle(ctx, Message{ID: 8, Text: "#GOOD Long Liquidation: $10k", Timestamp: ts}); err != nil {
		t.Errorf("next message failed: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Ticker != "GOOD" {
		t.Errorf("recorded %+v, want only GOOD", rec.events)
	}
}

func TestPipeline_WarmStartOldestFirst(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewPipeline(rec, nil, 0)
	src := &fakeSource{history: []Message{
		{ID: 1, Text: "#BTC Long Liquidation: $1k", Timestamp: ts},
		{ID: 2, Text: ""},
		{ID: 3, Text: "#ETH Short Liquidation: $2k", Timestamp: ts.Add(time.Second)},
	}}

	if n := p.WarmStart(context.Background(), src, 50); n != 3 {
		t.Errorf("WarmStart returned %d, want 3", n)
	}
	if len(rec.events) != 2 || rec.events[0].Ticker != "BTC" || rec.events[1].Ticker != "ETH" {
		t.Errorf("recorded %+v, want BTC then ETH", rec.events)
	}
}

func TestPipeline_WarmStartFetchFailure(t *testing.T) {
	p := NewPipeline(&fakeRecorder{}, nil, 0)
	if n := p.WarmStart(context.Background(), &fakeSource{err: errors.New("forbidden")}, 50); n != 0 {
		t.Errorf("WarmStart returned %d, want 0", n)
	}
	if n := p.WarmStart(context.Background(), &fakeSource{}, 0); n != 0 {
		t.Errorf("WarmStart with limit 0 returned %d, want 0", n)
	}
}

func TestFormatSingleEvent(t *testing.T) {
	a := FormatSingleEvent(models.LiquidationEvent{Timestamp: ts, Ticker: "BTC", Direction: models.Short, Amount: 1500000})
	if a.Title != "🟢 Large Short Liquidation" {
		t.Errorf("title = %q", a.Title)
	}
	if a.Severity != models.SeverityShortLiquidation {
		t.Errorf("severity = %v", a.Severity)
	}
	want := []string{"**Ticker:** `BTC`", "**Amount:** `$1,500,000.00`", "**Time:** `2026-10-16T12:00:00Z`"}
	for i := range want {
		if a.Lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, a.Lines[i], want[i])
		}
	}
}

type stuckNotifier struct {
	release chan struct{}
	calls   chan struct{}
}

func (n *stuckNotifier) Notify(ctx context.Context, _ models.Alert) error {
	n.calls <- struct{}{}
	select {
	case <-n.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestPipeline_SlowAlertDoesNotBlockIngestion(t *testing.T) {
	rec := &fakeRecorder{}
	n := &stuckNotifier{release: make(chan struct{}), calls: make(chan struct{}, 2)}
	p := NewPipeline(rec, n, 1000)

	handled := make(chan struct{})
	go func() {
		defer close(handled)
		for _, text := range []string{"#BTC Long Liquidation: $10k", "#ETH Short Liquidation: $20k"} {
			if err := p.Handle(context.Background(), Message{Text: text, Timestamp: ts}); err != nil {
				t.Errorf("Handle: %v", err)
			}
		}
	}()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle blocked on a notification that never completes")
	}
	rec.mu.Lock()
	recorded := len(rec.events)
	rec.mu.Unlock()
	if recorded != 2 {
		t.Errorf("recorded %d events while alerts were pending, want 2", recorded)
	}

	close(n.release)
	p.Wait()
	if len(n.calls) != 2 {
		t.Errorf("started %d notifications, want 2", len(n.calls))
	}
}
