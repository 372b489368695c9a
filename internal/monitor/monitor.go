// Package monitor detects bursts of liquidation activity with a two-state
// IDLE/ACTIVE hysteresis machine and emits summary alerts.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/liqoracle/internal/logger"
	"github.com/rewired-gh/liqoracle/internal/models"
)

type Config struct {
	BaseThreshold         float64 // USD/sec
	AnalysisWindow        time.Duration
	AccelerationThreshold float64
	DominanceThreshold    float64 // reserved, not used in alert text yet
	BiasThreshold         float64
	SummaryCooldown       time.Duration
	GracePeriod           time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseThreshold:         20000,
		AnalysisWindow:        300 * time.Second,
		AccelerationThreshold: 3.0,
		DominanceThreshold:    0.75,
		BiasThreshold:         0.85,
		SummaryCooldown:       60 * time.Second,
		GracePeriod:           30 * time.Second,
	}
}

// Store is the persisted liquidation log the monitor reads while idle.
type Store interface {
	AddLiquidation(ctx context.Context, ev models.LiquidationEvent) error
	LiquidationsBetween(ctx context.Context, start, end time.Time) ([]models.LiquidationEvent, error)
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor owns the detection state. All fields below mu are guarded by it;
// notifications are sent after it is released.
type Monitor struct {
	store    Store
	notifier Notifier
	config   Config
	now      func() time.Time

	mu                 sync.Mutex
	state              models.State
	periodID           string
	activeSince        time.Time
	lastSummarySent    time.Time
	lastKnownSpeed     float64
	prevKnownSpeed     float64
	lastAboveThreshold time.Time
	activeEvents       []models.LiquidationEvent

	sends sync.WaitGroup
}

// New creates a Monitor in the IDLE state. notifier may be nil, in which
// case summaries are only logged.
func New(store Store, notifier Notifier, config Config, opts ...Option) *Monitor {
	m := &Monitor{
		store:    store,
		notifier: notifier,
		config:   config,
		now:      time.Now,
		state:    models.StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record persists ev and, while ACTIVE, appends a copy to the active-period
// buffer. Both happen under the state lock so an evaluation sees the event
// either everywhere or nowhere.
func (m *Monitor) Record(ctx context.Context, ev models.LiquidationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.AddLiquidation(ctx, ev); err != nil {
		return fmt.Errorf("failed to store liquidation: %w", err)
	}
	if m.state == models.StateActive {
		m.activeEvents = append(m.activeEvents, ev)
		logger.Debug("Appended %s %s liquidation to active period %s (%d events)",
			ev.Ticker, ev.Direction, m.periodID, len(m.activeEvents))
	}
	return nil
}

// Evaluate runs one detection step and, if the active period ended, sends
// the summary before returning.
func (m *Monitor) Evaluate(ctx context.Context) error {
	summary, err := m.advance(ctx)
	if err != nil || summary == nil {
		return err
	}
	m.deliver(ctx, *summary)
	return nil
}

// advance runs one detection step under the lock.
func (m *Monitor) advance(ctx context.Context) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step(ctx, m.now())
}

// deliver sends a summary and starts the cooldown only on success.
func (m *Monitor) deliver(ctx context.Context, summary models.Alert) {
	if m.notifier == nil {
		logger.Info("Summary (notifications disabled): %s %v", summary.Title, summary.Lines)
		return
	}
	if err := m.notifier.Notify(ctx, summary); err != nil {
		logger.Error("Failed to send summary notification: %v", err)
		return
	}
	logger.Info("Sent summary notification")

	m.mu.Lock()
	m.lastSummarySent = m.now()
	m.mu.Unlock()
}

// step decides and applies at most one transition. Caller holds mu.
func (m *Monitor) step(ctx context.Context, now time.Time) (*models.Alert, error) {
	var (
		events []models.LiquidationEvent
		window float64
	)

	// Idle: fixed window ending now, read fresh from the store.
	// Active: growing window since activation, from the in-memory buffer.
	if m.state == models.StateActive {
		events = m.activeEvents
		window = now.Sub(m.activeSince).Seconds()
	} else {
		start := now.Add(-m.config.AnalysisWindow)
		stored, err := m.store.LiquidationsBetween(ctx, start, now)
		if err != nil {
			return nil, fmt.Errorf("failed to load analysis window: %w", err)
		}
		events = stored
		window = m.config.AnalysisWindow.Seconds()
	}

	metrics := ComputeMetrics(events, window)
	speed := metrics.SpeedUSDPerSec
	logger.Debug("State: %s, Speed: %.2f, Events: %d", m.state, speed, len(events))

	if m.state == models.StateIdle {
		if speed >= m.config.BaseThreshold && m.cooldownElapsed(now) {
			m.activate(now, events)
		}
		m.lastKnownSpeed = speed
		return nil, nil
	}

	if speed >= m.config.BaseThreshold {
		m.lastAboveThreshold = now
		m.lastKnownSpeed = speed
		return nil, nil
	}
	if now.Sub(m.lastAboveThreshold) < m.config.GracePeriod {
		m.lastKnownSpeed = speed
		return nil, nil
	}

	logger.Info("Speed below threshold for grace period, closing active period %s", m.periodID)
	// metrics already covers the whole active period: all buffered events
	// over the time since activation.
	acceleration := Accelerate(speed, m.prevKnownSpeed, m.config.AccelerationThreshold)
	summary := FormatSummary(metrics, acceleration, m.prevKnownSpeed, m.config)
	m.reset()
	logger.Info("Transitioned to IDLE")
	return &summary, nil
}

func (m *Monitor) cooldownElapsed(now time.Time) bool {
	if m.lastSummarySent.IsZero() {
		return true
	}
	return now.Sub(m.lastSummarySent) >= m.config.SummaryCooldown
}

func (m *Monitor) activate(now time.Time, events []models.LiquidationEvent) {
	m.state = models.StateActive
	m.periodID = uuid.NewString()
	m.activeSince = now
	m.activeEvents = append([]models.LiquidationEvent(nil), events...)
	m.prevKnownSpeed = m.lastKnownSpeed
	m.lastAboveThreshold = now
	logger.With(logger.Fields{
		"period_id":  m.periodID,
		"events":     len(events),
		"prev_speed": m.prevKnownSpeed,
	}).Info("Transitioned to ACTIVE")
}

func (m *Monitor) reset() {
	m.state = models.StateIdle
	m.periodID = ""
	m.activeSince = time.Time{}
	m.lastAboveThreshold = time.Time{}
	m.activeEvents = nil
	m.lastKnownSpeed = 0
	m.prevKnownSpeed = 0
}

// Snapshot returns a copy of the current monitor state.
func (m *Monitor) Snapshot() models.MonitorSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := models.MonitorSnapshot{
		State:          m.state,
		PeriodID:       m.periodID,
		LastKnownSpeed: m.lastKnownSpeed,
		PrevKnownSpeed: m.prevKnownSpeed,
		BufferedEvents: len(m.activeEvents),
	}
	if !m.activeSince.IsZero() {
		t := m.activeSince
		s.ActiveSince = &t
	}
	if !m.lastSummarySent.IsZero() {
		t := m.lastSummarySent
		s.LastSummarySent = &t
	}
	return s
}
