package models

import (
	"time"
)

// WindowMetrics are aggregate statistics over a set of liquidation events.
// They are recomputed on demand and never persisted.
type WindowMetrics struct {
	SpeedUSDPerSec float64            `json:"speed_usd_per_sec"`
	TotalAmount    float64            `json:"total_amount"`
	TotalCount     int                `json:"total_count"`
	AvgEventAmount float64            `json:"avg_event_amount"`
	Dominance      map[string]float64 `json:"dominance"`
	LongBias       float64            `json:"long_bias"`
	ShortBias      float64            `json:"short_bias"`
}

// State is the detection state of the monitor.
type State string

const (
	StateIdle   State = "IDLE"
	StateActive State = "ACTIVE"
)

type MonitorSnapshot struct {
	State           State      `json:"state"`
	PeriodID        string     `json:"period_id,omitempty"`
	ActiveSince     *time.Time `json:"active_since,omitempty"`
	LastSummarySent *time.Time `json:"last_summary_sent,omitempty"`
	LastKnownSpeed  float64    `json:"last_known_speed"`
	PrevKnownSpeed  float64    `json:"prev_known_speed"`
	BufferedEvents  int        `json:"buffered_events"`
}

// Severity selects how loudly an alert is rendered.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityCritical
	SeverityLongLiquidation
	SeverityShortLiquidation
)

// Color returns the embed color used for the severity.
func (s Severity) Color() int {
	switch s {
	case SeverityCritical:
		return 15844367
	case SeverityLongLiquidation:
		return 15548997
	case SeverityShortLiquidation:
		return 5763719
	default:
		return 16776960
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityLongLiquidation:
		return "long"
	case SeverityShortLiquidation:
		return "short"
	default:
		return "warning"
	}
}

// Alert is a notification payload: a title and ordered description lines.
type Alert struct {
	Title    string
	Lines    []string
	Severity Severity
}
