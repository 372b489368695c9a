package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/liqoracle/internal/logger"
	"github.com/rewired-gh/liqoracle/internal/models"
)

// Run evaluates immediately and then every interval until ctx is cancelled.
// A failed cycle is logged and followed by a doubled wait; it never stops
// the loop. Summaries are sent in the background so a slow sink does not
// hold up the next cycle. Run returns once in-flight sends have finished.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	defer m.sends.Wait()
	consecutiveFailures := 0

	for {
		wait := interval
		if err := m.runCycle(ctx); err != nil {
			consecutiveFailures++
			wait = 2 * interval
			logger.Error("Monitoring cycle failed (%d consecutive), retrying in %v: %v",
				consecutiveFailures, wait, err)
		} else if consecutiveFailures > 0 {
			logger.Info("Monitoring recovered after %d consecutive failure(s)", consecutiveFailures)
			consecutiveFailures = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Monitoring loop stopped")
			return
		case <-timer.C:
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during evaluation: %v", r)
		}
	}()
	summary, err := m.advance(ctx)
	if err != nil || summary == nil {
		return err
	}
	m.sends.Add(1)
	go func(alert models.Alert) {
		defer m.sends.Done()
		m.deliver(ctx, alert)
	}(*summary)
	return nil
}
