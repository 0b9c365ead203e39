package report

import "strings"

const (
	barWidth = 10
	barFull  = "█"
	barEmpty = "░"
)

// Bar draws value relative to max as a fixed-width bar. Zero renders empty, any
// positive value shows at least one filled cell.
func Bar(value, max int) string {
	if max <= 0 || value <= 0 {
		return strings.Repeat(barEmpty, barWidth)
	}
	if value > max {
		value = max
	}
	filled := (value*barWidth + max/2) / max
	if filled == 0 {
		filled = 1
	}
	return strings.Repeat(barFull, filled) + strings.Repeat(barEmpty, barWidth-filled)
}
