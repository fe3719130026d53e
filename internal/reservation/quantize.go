package reservation

import (
	"fmt"
	"strings"
	"time"
)

// Accepted raw layouts. The first matches the datetime-local inputs the web
// UI sends; the rest cover API clients that already speak RFC3339.
var slotTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseSlotTime parses a raw submitted time and quantizes it to the slot
// grid. Unparseable input yields ErrInvalidTime.
func ParseSlotTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTime)
	}
	for _, layout := range slotTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Quantize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
}

// Quantize normalizes t to UTC, drops seconds and sub-seconds, and floors the
// minute to the 30-minute boundary: [:00,:30) -> :00, [:30,:60) -> :30.
// Idempotent: Quantize(Quantize(t)) == Quantize(t).
func Quantize(t time.Time) time.Time {
	return t.UTC().Truncate(SlotStep)
}

// Aligned reports whether t is already on a slot boundary.
func Aligned(t time.Time) bool {
	return t.Equal(Quantize(t))
}

// StartOfDay returns midnight UTC of t's calendar date.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
