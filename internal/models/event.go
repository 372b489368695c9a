// Package models defines the core domain entities: liquidation events,
// window metrics, alerts and monitor snapshots.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Direction is the side of the liquidated position.
type Direction string

const (
	Long  Direction = "Long"
	Short Direction = "Short"
)

// ParseDirection normalizes a case-insensitive direction word.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "long":
		return Long, nil
	case "short":
		return Short, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// LiquidationEvent is a single forced position close. It is a value type:
// the store and the monitor's active buffer each hold their own copy.
type LiquidationEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Ticker    string    `json:"ticker"`
	Direction Direction `json:"direction"`
	Amount    float64   `json:"amount"`
}

// Validate checks event field constraints.
func (e *LiquidationEvent) Validate() error {
	if e.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	if e.Ticker == "" {
		return errors.New("ticker must not be empty")
	}
	if e.Ticker != strings.ToUpper(e.Ticker) {
		return errors.New("ticker must be uppercase")
	}
	if e.Direction != Long && e.Direction != Short {
		return fmt.Errorf("invalid direction %q", e.Direction)
	}
	if e.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}
