package intent

import (
	"fmt"
	"strings"
	"time"
)

const systemPromptTemplate = `You read one chat message and decide whether the user wants to plan an outdoor activity, wants a weather report, or is just chatting.

Current local time: %s (%s).

Reply with a single JSON object and nothing else:
{
  "activity": string,          // what the user wants to do, e.g. "hiking", "picnic"
  "datetime": string,          // ISO 8601 local time, e.g. "2025-05-28T15:00:00"
  "location": string,          // city or place, or "" if none was given
  "confidence": number,        // 0.0 to 1.0
  "is_weather_query": boolean, // true if the user only asks about the weather
  "has_specific_time": boolean // true only if a clock time was given
}

Rules:
- Greetings, thanks and small talk: activity "casual conversation", confidence 0.0.
- Weather questions without a plan to do something: activity "weather query", is_weather_query true.
- Planning requests ("go for a run tomorrow at 3pm", "picnic next Saturday"): the activity, confidence 0.8 or higher.
- If you cannot tell what the user wants: activity "unknown", confidence 0.0.
- has_specific_time is true only for clock times like "3pm", "at 2:30" or "9 in the morning". "tomorrow", "this Saturday" or "next week" alone are not specific; give that date at 00:00.
- Resolve relative dates ("tomorrow", "this Friday") against the current local time.
- Leave location empty when none is mentioned; the default is %s.`

func systemPrompt(now time.Time, loc *time.Location, fallback string) string {
	now = now.In(loc)
	return fmt.Sprintf(systemPromptTemplate, now.Format("Monday, 2006-01-02T15:04:05"), loc.String(), fallback)
}

// stripFences removes markdown code fences and anything around the outermost
// JSON object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
