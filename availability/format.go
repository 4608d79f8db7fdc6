package availability

import (
	"fmt"
	"strings"
	"time"
)

// FormatSlots renders slots grouped by calendar day in the given timezone,
// the shape the decision service echoes back to counterparties.
func FormatSlots(slots []TimeSlot, loc *time.Location) string {
	if len(slots) == 0 {
		return "No available slots found in the requested range."
	}

	var b strings.Builder
	var currentDay string
	for _, slot := range slots {
		start := slot.Start.In(loc)
		day := start.Format("Monday, January 2")
		if day != currentDay {
			if currentDay != "" {
				b.WriteString("\n")
			}
			b.WriteString(day + ":\n")
			currentDay = day
		}
		fmt.Fprintf(&b, "  - %s to %s\n",
			start.Format("3:04 PM"),
			slot.End.In(loc).Format("3:04 PM"))
	}
	return b.String()
}
