// Package calendar holds the scheduling sinks: Google Calendar over REST and
// a local SQLite table.
package calendar

import (
	"fmt"
	"time"
)

// DefaultDuration is used when no event duration is configured.
const DefaultDuration = time.Hour

// Event is an activity written to a sink.
type Event struct {
	ID        string
	Activity  string
	Location  string
	Start     time.Time
	End       time.Time
	Link      string
	CreatedAt time.Time
}

func description(activity string) string {
	return fmt.Sprintf("Scheduled via fairweather\nActivity: %s", activity)
}

func durationOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultDuration
	}
	return d
}
