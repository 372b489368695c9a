// Package parser extracts liquidation mentions from channel message text.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rewired-gh/liqoracle/internal/models"
)

var liquidationPattern = regexp.MustCompile(`(?i)#(?:\w+:)?(\w+)\s+(Long|Short)\s+Liquidation:\s*(\$[\d,]+\.?\d*[kM]?)`)

// Result is a parsed liquidation mention.
type Result struct {
	Ticker    string
	Direction models.Direction
	Amount    float64
}

// Parse extracts a liquidation from text. The second return is false when
// the text does not mention a liquidation, which is the common case.
func Parse(text string) (Result, bool) {
	if text == "" {
		return Result{}, false
	}
	m := liquidationPattern.FindStringSubmatch(text)
	if m == nil {
		return Result{}, false
	}
	dir, err := models.ParseDirection(m[2])
	if err != nil {
		return Result{}, false
	}
	return Result{
		Ticker:    strings.ToUpper(m[1]),
		Direction: dir,
		Amount:    ParseAmount(m[3]),
	}, true
}

// ParseAmount converts a dollar string such as "$1,250.50", "$2k" or "$1.5M"
// into USD. Malformed input yields 0.
func ParseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		multiplier = 1_000_000
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v * multiplier
}
