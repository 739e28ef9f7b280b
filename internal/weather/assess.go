package weather

import (
	"strings"
	"time"

	"github.com/user/fairweather/internal/types"
)

// DefaultRainProbability is the precipitation probability, in percent, at
// or above which conditions count as adverse.
const DefaultRainProbability = 60.0

// Thresholds tune Assess.
type Thresholds struct {
	RainProbabilityPct float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{RainProbabilityPct: DefaultRainProbability}
}

var precipitationWords = []string{"rain", "drizzle", "shower", "thunderstorm", "snow", "sleet"}

// Assess decides whether conditions are adverse for an outdoor activity.
func Assess(summary string, readings map[string]float64, th Thresholds) bool {
	s := strings.ToLower(summary)
	for _, w := range precipitationWords {
		if strings.Contains(s, w) {
			return true
		}
	}
	if th.RainProbabilityPct <= 0 {
		th.RainProbabilityPct = DefaultRainProbability
	}
	if p, ok := readings[types.ReadingPrecipitationProb]; ok && p >= th.RainProbabilityPct {
		return true
	}
	return false
}

// NewReport builds a report and computes Adverse. It is the only place
// Adverse is set.
func NewReport(location string, at time.Time, summary string, readings map[string]float64, th Thresholds) *types.ConditionReport {
	if readings == nil {
		readings = map[string]float64{}
	}
	return &types.ConditionReport{
		Location: location,
		At:       at,
		Summary:  summary,
		Readings: readings,
		Adverse:  Assess(summary, readings, th),
	}
}
