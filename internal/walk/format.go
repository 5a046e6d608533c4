package walk

import (
	"fmt"
	"time"
)

// FormatDuration renders d as minutes and zero-padded seconds, e.g. "12:05".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
