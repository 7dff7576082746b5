package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned when an amount is not a positive whole number of minor units.
var ErrInvalidAmount = errors.New("domain: amount must be a positive integer in minor units")

// MinorUnits is a strictly positive amount in the smallest currency unit (cents).
type MinorUnits int64

// NewMinorUnits validates the raw value.
func NewMinorUnits(value int64) (MinorUnits, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidAmount, value)
	}
	return MinorUnits(value), nil
}

// ParseMinorUnits validates a JSON number taken from an untyped request body.
func ParseMinorUnits(raw json.Number) (MinorUnits, error) {
	text := strings.TrimSpace(raw.String())
	if text == "" {
		return 0, fmt.Errorf("%w: missing", ErrInvalidAmount)
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	return NewMinorUnits(value)
}

// Int64 returns the raw value.
func (m MinorUnits) Int64() int64 {
	return int64(m)
}

// Major converts to the major currency unit, e.g. 2599 becomes 25.99.
func (m MinorUnits) Major() float64 {
	return float64(m) / 100
}

// ValidPrice reports whether the value is a finite, non-negative price.
func ValidPrice(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0) && value >= 0
}
