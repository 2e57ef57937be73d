package routing

import "fmt"

// FormatDuration renders a travel time. Seconds are truncated to whole minutes:
// 7500 -> "2 h 5 min", 2520 -> "42 min".
func FormatDuration(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%d h %d min", hours, minutes)
	}
	return fmt.Sprintf("%d min", minutes)
}

// FormatDistance renders meters as kilometers with two decimals: 12345 -> "12.35 km".
func FormatDistance(meters float64) string {
	if meters < 0 {
		meters = 0
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}
