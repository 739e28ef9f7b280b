package workflow

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/user/fairweather/internal/types"
)

const (
	layoutDateTime = "Monday, 2 January 2006, 3:04 PM"
	layoutDate     = "Monday, 2 January 2006"
)

// clarifyReason selects the wording of a general clarification.
type clarifyReason int

const (
	reasonUnclear clarifyReason = iota
	reasonCasual
	reasonUnavailable
	reasonAdverse
	reasonDecision
)

func (e *Engine) formatWhen(t time.Time, withTime bool) string {
	t = t.In(e.cfg.Location)
	if !withTime {
		return t.Format(layoutDate)
	}
	return t.Format(layoutDateTime)
}

func (e *Engine) intentWhen(i *types.Intent) string {
	return e.formatWhen(i.TargetTime, i.HasSpecificTime)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func (e *Engine) reportMessage(i *types.Intent, r *types.ConditionReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weather for %s on %s:\n\n", titleCase(r.Location), e.intentWhen(i))
	fmt.Fprintf(&b, "Conditions: %s\n", r.Summary)
	if temp, ok := r.Reading(types.ReadingTemperature); ok {
		if feels, ok := r.Reading(types.ReadingFeelsLike); ok {
			fmt.Fprintf(&b, "Temperature: %.1f°C (feels like %.1f°C)\n", temp, feels)
		} else {
			fmt.Fprintf(&b, "Temperature: %.1f°C\n", temp)
		}
	}
	if v, ok := r.Reading(types.ReadingHumidity); ok {
		fmt.Fprintf(&b, "Humidity: %.0f%%\n", v)
	}
	if v, ok := r.Reading(types.ReadingPrecipitationProb); ok {
		fmt.Fprintf(&b, "Chance of rain: %.0f%%\n", v)
	}
	if v, ok := r.Reading(types.ReadingWindSpeed); ok {
		fmt.Fprintf(&b, "Wind: %.1f m/s\n", v)
	}
	b.WriteString("\n")
	b.WriteString(e.advice(r))
	return b.String()
}

func (e *Engine) advice(r *types.ConditionReport) string {
	temp, hasTemp := r.Reading(types.ReadingTemperature)
	switch {
	case r.Adverse:
		return "Conditions look unfavourable for outdoor activities. Bring an umbrella if you head out."
	case hasTemp && temp > e.cfg.HotCelsius:
		return "It'll be hot. Stay hydrated if you're heading outdoors."
	case hasTemp && temp < e.cfg.CoolCelsius:
		return "It'll be cool. You might want a jacket."
	default:
		return "Great weather for outdoor activities!"
	}
}

func (e *Engine) reportUnavailableMessage(location string) string {
	return fmt.Sprintf("Sorry, I couldn't get the forecast for %s right now. Please try again in a little while.", titleCase(location))
}

func (e *Engine) timeClarificationMessage(i *types.Intent, retry bool) string {
	prefix := ""
	if retry {
		prefix = "Sorry, I couldn't understand that time. "
	}
	return fmt.Sprintf(
		"%sWhat time would you like to schedule %s on %s?\n\nFor example: \"3pm\", \"2:30 in the afternoon\" or \"9 in the morning\".",
		prefix, i.Activity, e.formatWhen(i.TargetTime, false),
	)
}

func (e *Engine) generalClarificationMessage(r *run) string {
	switch r.reason {
	case reasonCasual:
		return casualReply(r.utterance)
	case reasonUnavailable:
		return fmt.Sprintf(
			"I couldn't check the weather for %s on %s, so I haven't scheduled %s. Please try again later.",
			titleCase(r.intent.LocationOr(e.cfg.FallbackLocation)), e.intentWhen(r.intent), r.intent.Activity,
		)
	case reasonAdverse:
		return fmt.Sprintf(
			"The forecast for %s on %s shows %s, which isn't ideal for %s. What would you like to do?\n\n1. Proceed anyway\n2. Reschedule to a different time\n3. Cancel the activity",
			titleCase(r.report.Location), e.intentWhen(r.intent), r.report.Summary, r.intent.Activity,
		)
	case reasonDecision:
		return fmt.Sprintf(
			"Sorry, I didn't catch that. For %s on %s, reply \"proceed\" to keep the plan, \"reschedule\" to pick a different time, or \"cancel\" to drop it.",
			r.intent.Activity, e.intentWhen(r.intent),
		)
	default:
		return "I'm not sure what you'd like to do. Could you say it another way?\n\n" +
			"For example: \"Go hiking tomorrow at 9am\" or \"What's the weather in Tokyo on Friday?\""
	}
}

func casualReply(utterance string) string {
	u := strings.ToLower(utterance)
	switch {
	case strings.Contains(u, "how are you"):
		return "I'm doing well, thanks for asking! Want me to check the weather or plan an outdoor activity?"
	case strings.Contains(u, "thank"):
		return "You're welcome! Let me know if there's anything else you'd like to plan."
	default:
		return "Hello! I can check the weather or schedule outdoor activities for you. Try \"Go for a run tomorrow at 7am\"."
	}
}

func (e *Engine) confirmMessage(r *run, ev *types.ScheduledEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scheduled %s for %s in %s.",
		r.intent.Activity, e.intentWhen(r.intent), titleCase(r.intent.LocationOr(e.cfg.FallbackLocation)))
	switch {
	case r.proceeded:
		b.WriteString(" Keeping it despite the forecast, so plan accordingly.")
	case r.report != nil:
		fmt.Fprintf(&b, " The weather looks good: %s.", r.report.Summary)
	}
	if ev != nil && ev.Link != "" {
		fmt.Fprintf(&b, "\n%s", ev.Link)
	}
	return b.String()
}

func scheduleFailedMessage(activity string) string {
	return fmt.Sprintf("Sorry, I couldn't add %s to your calendar. Please try again.", activity)
}

func rescheduleMessage(activity string) string {
	return fmt.Sprintf(
		"No problem. When would you like to do %s instead? Send the activity with its new date and time, for example \"%s on Saturday at 10am\".",
		activity, activity,
	)
}

func cancelMessage(activity string) string {
	return fmt.Sprintf("Okay, I've cancelled %s. Nothing was added to your calendar.", activity)
}
