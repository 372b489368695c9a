// Package ingest turns raw channel messages into stored liquidation events.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/liqoracle/internal/logger"
	"github.com/rewired-gh/liqoracle/internal/models"
	"github.com/rewired-gh/liqoracle/internal/monitor"
	"github.com/rewired-gh/liqoracle/internal/parser"
)

// Message is a raw text message with the time it was posted.
type Message struct {
	ID        int
	Text      string
	Timestamp time.Time
}

// Source produces channel messages.
type Source interface {
	// Recent returns up to limit recent messages, oldest first.
	Recent(ctx context.Context, limit int) ([]Message, error)
	// Listen delivers new messages to handle until ctx is cancelled.
	Listen(ctx context.Context, handle func(Message)) error
}

// Recorder persists events and feeds the active-period buffer.
type Recorder interface {
	Record(ctx context.Context, ev models.LiquidationEvent) error
}

// Pipeline parses messages, records liquidations and sends single-event
// alerts for large ones.
type Pipeline struct {
	recorder  Recorder
	notifier  monitor.Notifier
	threshold float64

	sends sync.WaitGroup
}

// NewPipeline creates a Pipeline. A threshold of 0 disables single-event
// alerts; notifier may be nil.
func NewPipeline(recorder Recorder, notifier monitor.Notifier, singleEventThreshold float64) *Pipeline {
	return &Pipeline{
		recorder:  recorder,
		notifier:  notifier,
		threshold: singleEventThreshold,
	}
}

// Handle processes one message. Messages without a liquidation are
// ignored. The returned error covers only this message.
func (p *Pipeline) Handle(ctx context.Context, msg Message) error {
	res, ok := parser.Parse(msg.Text)
	if !ok || res.Ticker == "" || res.Direction == "" || res.Amount == 0 {
		return nil
	}

	ev := models.LiquidationEvent{
		Timestamp: msg.Timestamp.UTC(),
		Ticker:    res.Ticker,
		Direction: res.Direction,
		Amount:    res.Amount,
	}
	logger.Info("Detected liquidation: %s-%s, Amount: %.2f", ev.Ticker, ev.Direction, ev.Amount)

	if err := p.recorder.Record(ctx, ev); err != nil {
		return fmt.Errorf("message %d: %w", msg.ID, err)
	}

	if p.threshold > 0 && ev.Amount >= p.threshold && p.notifier != nil {
		// Delivery never blocks the next message.
		p.sends.Add(1)
		go func(alert models.Alert, ticker string) {
			defer p.sends.Done()
			if err := p.notifier.Notify(ctx, alert); err != nil {
				logger.Error("Failed to send single-event notification: %v", err)
				return
			}
			logger.Info("Sent single-event notification for %s", ticker)
		}(FormatSingleEvent(ev), ev.Ticker)
	}
	return nil
}

// Wait blocks until every single-event alert started by Handle has finished.
func (p *Pipeline) Wait() {
	p.sends.Wait()
}

// HandleLogged is Handle for callers that cannot act on the error.
func (p *Pipeline) HandleLogged(ctx context.Context, msg Message) {
	if err := p.Handle(ctx, msg); err != nil {
		logger.Error("Error processing message: %v", err)
	}
}

// WarmStart replays recent history oldest-first. Fetch failures are logged
// and do not stop startup.
func (p *Pipeline) WarmStart(ctx context.Context, src Source, limit int) int {
	if limit <= 0 {
		return 0
	}
	logger.Info("Fetching last %d messages...", limit)
	history, err := src.Recent(ctx, limit)
	if err != nil {
		logger.Error("Error fetching historical messages: %v", err)
		return 0
	}
	for _, msg := range history {
		if msg.Text == "" {
			continue
		}
		p.HandleLogged(ctx, msg)
	}
	return len(history)
}

// FormatSingleEvent renders the alert for one large liquidation.
func FormatSingleEvent(ev models.LiquidationEvent) models.Alert {
	emoji, severity := "🔴", models.SeverityLongLiquidation
	if ev.Direction == models.Short {
		emoji, severity = "🟢", models.SeverityShortLiquidation
	}
	return models.Alert{
		Title: fmt.Sprintf("%s Large %s Liquidation", emoji, ev.Direction),
		Lines: []string{
			fmt.Sprintf("**Ticker:** `%s`", ev.Ticker),
			fmt.Sprintf("**Amount:** `$%s`", monitor.FormatUSD(ev.Amount)),
			fmt.Sprintf("**Time:** `%s`", ev.Timestamp.Format(time.RFC3339)),
		},
		Severity: severity,
	}
}
