// Package weather provides the condition provider backed by OpenWeatherMap.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/user/fairweather/internal/external"
	"github.com/user/fairweather/internal/types"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

	// forecastHorizon is how far ahead /forecast has slots.
	forecastHorizon = 5 * 24 * time.Hour
)

var ErrNoAPIKey = errors.New("weather: api key not configured")

type description struct {
	Main        string `json:"main"`
	Description string `json:"description" validate:"required"`
}

type mainBlock struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Humidity  float64 `json:"humidity" validate:"gte=0,lte=100"`
}

type wind struct {
	Speed float64 `json:"speed" validate:"gte=0"`
}

type forecastSlot struct {
	Dt      int64         `json:"dt" validate:"required"`
	Main    mainBlock     `json:"main"`
	Weather []description `json:"weather" validate:"min=1,dive"`
	Wind    wind          `json:"wind"`
	Pop     float64       `json:"pop" validate:"gte=0,lte=1"`
}

type forecastResponse struct {
	List []forecastSlot `json:"list" validate:"min=1,dive"`
}

type currentResponse struct {
	Name    string        `json:"name"`
	Dt      int64         `json:"dt"`
	Main    mainBlock     `json:"main"`
	Weather []description `json:"weather" validate:"min=1,dive"`
	Wind    wind          `json:"wind"`
}

// OpenWeather implements types.ConditionProvider.
type OpenWeather struct {
	client     *external.Client
	apiKey     string
	baseURL    string
	thresholds Thresholds
	validate   *validator.Validate
	now        func() time.Time
}

type Option func(*OpenWeather)

func WithBaseURL(u string) Option {
	return func(o *OpenWeather) {
		if u != "" {
			o.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithThresholds(th Thresholds) Option {
	return func(o *OpenWeather) { o.thresholds = th }
}

func WithClock(now func() time.Time) Option {
	return func(o *OpenWeather) { o.now = now }
}

func NewOpenWeather(client *external.Client, apiKey string, opts ...Option) *OpenWeather {
	o := &OpenWeather{
		client:     client,
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		thresholds: DefaultThresholds(),
		validate:   validator.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Forecast uses the 3-hourly forecast when when is inside its horizon and
// current conditions otherwise.
func (o *OpenWeather) Forecast(ctx context.Context, when time.Time, location string) (*types.ConditionReport, error) {
	if o.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if strings.TrimSpace(location) == "" {
		return nil, errors.New("weather: empty location")
	}

	if when.Sub(o.now()) <= forecastHorizon {
		return o.forecast(ctx, when, location)
	}
	slog.Debug("target beyond forecast horizon, using current conditions", "location", location, "when", when)
	return o.current(ctx, location)
}

func (o *OpenWeather) forecast(ctx context.Context, when time.Time, location string) (*types.ConditionReport, error) {
	var resp forecastResponse
	if err := o.get(ctx, "/forecast", location, &resp); err != nil {
		return nil, err
	}

	best := resp.List[0]
	bestDiff := absDuration(time.Unix(best.Dt, 0).Sub(when))
	for _, slot := range resp.List[1:] {
		if d := absDuration(time.Unix(slot.Dt, 0).Sub(when)); d < bestDiff {
			best, bestDiff = slot, d
		}
	}

	readings := readingsOf(best.Main, best.Wind)
	readings[types.ReadingPrecipitationProb] = best.Pop * 100
	return NewReport(location, time.Unix(best.Dt, 0).In(when.Location()), summaryOf(best.Weather), readings, o.thresholds), nil
}

func (o *OpenWeather) current(ctx context.Context, location string) (*types.ConditionReport, error) {
	var resp currentResponse
	if err := o.get(ctx, "/weather", location, &resp); err != nil {
		return nil, err
	}
	at := o.now()
	if resp.Dt > 0 {
		at = time.Unix(resp.Dt, 0)
	}
	return NewReport(location, at, summaryOf(resp.Weather), readingsOf(resp.Main, resp.Wind), o.thresholds), nil
}

func (o *OpenWeather) get(ctx context.Context, path, location string, out any) error {
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", o.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("weather: build request: %w", err)
	}
	if err := o.client.DoJSON(req, out); err != nil {
		if external.CodeOf(err) == external.CodeUpstreamNotFound {
			return fmt.Errorf("weather: unknown location %q: %w", location, err)
		}
		return fmt.Errorf("weather: %s: %w", path, err)
	}
	if err := o.validate.Struct(out); err != nil {
		return fmt.Errorf("weather: invalid %s payload: %w", path, err)
	}
	return nil
}

func readingsOf(m mainBlock, w wind) map[string]float64 {
	return map[string]float64{
		types.ReadingTemperature: m.Temp,
		types.ReadingFeelsLike:   m.FeelsLike,
		types.ReadingHumidity:    m.Humidity,
		types.ReadingWindSpeed:   w.Speed,
	}
}

func summaryOf(ds []description) string {
	parts := make([]string, 0, len(ds))
	for _, d := range ds {
		parts = append(parts, d.Description)
	}
	return strings.Join(parts, ", ")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
