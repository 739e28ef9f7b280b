package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/fairweather/internal/types"
)

var sgt = time.FixedZone("SGT", 8*3600)

type fakeExtractor struct {
	intent *types.Intent
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, _ string, _ time.Time) (*types.Intent, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.intent.Clone(), nil
}

type forecastCall struct {
	When     time.Time
	Location string
}

type fakeProvider struct {
	mu     sync.Mutex
	report *types.ConditionReport
	err    error
	delay  time.Duration
	calls  []forecastCall
}

func (f *fakeProvider) Forecast(ctx context.Context, when time.Time, location string) (*types.ConditionReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, forecastCall{When: when, Location: location})
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.report
	r.Location = location
	r.At = when
	return &r, nil
}

type scheduleCall struct {
	Activity string
	When     time.Time
	Location string
}

type fakeSink struct {
	err   error
	calls []scheduleCall
}

func (f *fakeSink) Schedule(_ context.Context, activity string, when time.Time, location string) (*types.ScheduledEvent, error) {
	f.calls = append(f.calls, scheduleCall{Activity: activity, When: when, Location: location})
	if f.err != nil {
		return nil, f.err
	}
	return &types.ScheduledEvent{ID: "evt-1", Link: "https://calendar.example/evt-1"}, nil
}

var errUpstream = errors.New("upstream unavailable")

func clearReport() *types.ConditionReport {
	return &types.ConditionReport{
		Summary: "clear sky",
		Readings: map[string]float64{
			types.ReadingTemperature: 27,
			types.ReadingFeelsLike:   29,
			types.ReadingHumidity:    70,
		},
	}
}

func rainReport() *types.ConditionReport {
	return &types.ConditionReport{
		Summary:  "moderate rain",
		Readings: map[string]float64{types.ReadingTemperature: 26, types.ReadingPrecipitationProb: 90},
		Adverse:  true,
	}
}

func tomorrowAt(hour, minute int) time.Time {
	return time.Date(2025, 5, 28, hour, minute, 0, 0, sgt)
}

func newTestEngine(ex *fakeExtractor, p *fakeProvider, s *fakeSink) *Engine {
	cfg := DefaultConfig()
	cfg.Location = sgt
	cfg.ExtractTimeout = 200 * time.Millisecond
	cfg.ForecastTimeout = 200 * time.Millisecond
	cfg.ScheduleTimeout = 200 * time.Millisecond
	return New(ex, p, s, cfg, WithClock(func() time.Time { return tomorrowAt(0, 0).Add(-14 * time.Hour) }))
}
