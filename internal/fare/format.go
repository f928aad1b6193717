package fare

import (
	"fmt"
	"math"
)

// FormatDistance renders metres below one kilometre, otherwise one decimal km.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}

// FormatDuration renders "N mins" under an hour and "Xh Ym" above.
func FormatDuration(minutes float64) string {
	m := int(math.Round(minutes))
	if m < 60 {
		return fmt.Sprintf("%d mins", m)
	}
	return fmt.Sprintf("%dh %dm", m/60, m%60)
}
