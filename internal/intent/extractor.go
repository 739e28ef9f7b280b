// Package intent turns free text into a structured types.Intent using an LLM.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/user/fairweather/internal/types"
	"github.com/user/fairweather/pkg/llm"
)

// ErrInvalidReply means the model answered with something that is not a
// usable intent.
var ErrInvalidReply = errors.New("invalid intent reply")

// reply is the JSON object the model is asked to produce.
type reply struct {
	Activity        string  `json:"activity" validate:"required"`
	Datetime        string  `json:"datetime"`
	Location        string  `json:"location"`
	Confidence      float64 `json:"confidence" validate:"gte=0,lte=1"`
	IsWeatherQuery  bool    `json:"is_weather_query"`
	HasSpecificTime bool    `json:"has_specific_time"`
}

var (
	dateTimeLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
	dateLayout = "2006-01-02"
)

type Option func(*LLMExtractor)

// WithLocation sets the zone used for the reference time and for datetimes
// the model returns without an offset.
func WithLocation(loc *time.Location) Option {
	return func(e *LLMExtractor) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithFallbackLocation names the default place in the prompt.
func WithFallbackLocation(place string) Option {
	return func(e *LLMExtractor) {
		e.fallback = place
	}
}

// WithBudget clips utterances to a token budget before sending them.
func WithBudget(b *Budget) Option {
	return func(e *LLMExtractor) {
		e.budget = b
	}
}

// LLMExtractor implements types.IntentExtractor over an llm.Provider.
type LLMExtractor struct {
	provider llm.Provider
	validate *validator.Validate
	loc      *time.Location
	fallback string
	budget   *Budget
}

var _ types.IntentExtractor = (*LLMExtractor)(nil)

func NewLLMExtractor(provider llm.Provider, opts ...Option) *LLMExtractor {
	e := &LLMExtractor{
		provider: provider,
		validate: validator.New(),
		loc:      time.UTC,
		fallback: "Singapore",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *LLMExtractor) Extract(ctx context.Context, utterance string, now time.Time) (*types.Intent, error) {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return &types.Intent{Activity: types.ActivityUnknown}, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(now, e.loc, e.fallback)},
		{Role: llm.RoleUser, Content: e.budget.Clip(text)},
	}
	resp, err := e.provider.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("extract intent: %w", err)
	}
	return e.parse(resp.Content, now)
}

func (e *LLMExtractor) parse(content string, now time.Time) (*types.Intent, error) {
	var r reply
	if err := json.Unmarshal([]byte(stripFences(content)), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	if err := e.validate.Struct(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}

	when, dateOnly, err := e.parseDatetime(r.Datetime, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}

	return &types.Intent{
		Activity:             strings.TrimSpace(r.Activity),
		TargetTime:           when,
		Location:             strings.TrimSpace(r.Location),
		Confidence:           r.Confidence,
		IsPureConditionQuery: r.IsWeatherQuery,
		HasSpecificTime:      r.HasSpecificTime && !dateOnly,
	}, nil
}

// parseDatetime reads the model's datetime in the configured zone. An empty
// value means today with no time.
func (e *LLMExtractor) parseDatetime(s string, now time.Time) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		n := now.In(e.loc)
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, e.loc), true, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, e.loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation(dateLayout, s, e.loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognised datetime %q", s)
}
