package workorder

import (
	"fmt"
	"time"

	"orderline/internal/domain"
)

// CloseInterval returns the whole seconds between start and now, rounded
// half-up. A start in the future counts as zero; elapsed time is never
// negative and totals never shrink.
func CloseInterval(start, now time.Time) int64 {
	d := now.Sub(start)
	if d <= 0 {
		return 0
	}
	return int64((d + 500*time.Millisecond) / time.Second)
}

// Accumulate folds a running interval into the stored total and clears
// the start time. Always an addition to the total already on the order,
// never a reassignment from a figure computed elsewhere.
func Accumulate(w domain.WorkOrder, now time.Time) domain.WorkOrder {
	if w.CurrentStartTime == nil {
		return w
	}
	w.TotalTimeSeconds += CloseInterval(*w.CurrentStartTime, now)
	w.CurrentStartTime = nil
	return w
}

// LiveTotal is the stored total plus the open interval, if any. This is
// the figure rendered while an order is being worked on.
func LiveTotal(w domain.WorkOrder, now time.Time) int64 {
	total := w.TotalTimeSeconds
	if w.CurrentStartTime != nil {
		total += CloseInterval(*w.CurrentStartTime, now)
	}
	return total
}

// FormatClock renders seconds as hh:mm:ss.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
