package utils

import "fmt"

// FormatDuration formats seconds as "1 hr 2 min 3 sec", dropping the hours
// when there are none
func FormatDuration(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	if h > 0 {
		return fmt.Sprintf("%d hr %d min %d sec", h, m, s)
	}
	return fmt.Sprintf("%d min %d sec", m, s)
}
