package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/user/fairweather/internal/calendar"
	"github.com/user/fairweather/internal/config"
	"github.com/user/fairweather/internal/delivery"
	"github.com/user/fairweather/internal/external"
	"github.com/user/fairweather/internal/gateway"
	"github.com/user/fairweather/internal/intent"
	"github.com/user/fairweather/internal/session"
	"github.com/user/fairweather/internal/state"
	"github.com/user/fairweather/internal/types"
	"github.com/user/fairweather/internal/weather"
	"github.com/user/fairweather/internal/workflow"
	"github.com/user/fairweather/pkg/llm"
	"github.com/user/fairweather/pkg/llm/gemini"
	"github.com/user/fairweather/pkg/llm/openai"
)

const userAgent = "fairweather/1.0"

// app holds everything serve and chat share.
type app struct {
	cfg        *config.Config
	gateway    *gateway.Gateway
	transcript *state.TranscriptStore
	briefings  *state.BriefingStore
	delivery   *delivery.Registry
	closers    []func() error
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	a := &app{cfg: cfg}
	loc := cfg.Location()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	extractor := intent.NewLLMExtractor(provider,
		intent.WithLocation(loc),
		intent.WithFallbackLocation(cfg.FallbackLocation),
		intent.WithBudget(intent.NewBudget(cfg.LLM.Model, cfg.LLM.MaxInputTokens)),
	)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.Weather.APIKey == "" {
		slog.Warn("no weather api key; every condition lookup will fail")
	}
	conditions := weather.NewOpenWeather(
		external.NewClient(httpClient, "openweather", external.DefaultRetryPolicy(), userAgent),
		cfg.Weather.APIKey,
		weather.WithBaseURL(cfg.Weather.BaseURL),
		weather.WithThresholds(weather.Thresholds{RainProbabilityPct: cfg.Conditions.RainProbabilityThreshold}),
	)

	sink, err := a.newSink(cfg, httpClient, loc)
	if err != nil {
		return nil, err
	}

	wfCfg := workflow.DefaultConfig()
	wfCfg.FallbackLocation = cfg.FallbackLocation
	wfCfg.Location = loc
	wfCfg.HotCelsius = cfg.Conditions.HotCelsius
	wfCfg.CoolCelsius = cfg.Conditions.CoolCelsius
	wfCfg.ExtractTimeout = cfg.Timeouts.Extract()
	wfCfg.ForecastTimeout = cfg.Timeouts.Forecast()
	wfCfg.ScheduleTimeout = cfg.Timeouts.Schedule()
	engine := workflow.New(extractor, conditions, sink, wfCfg)

	a.transcript = state.NewTranscriptStore(cfg.DataDir)
	a.briefings = state.NewBriefingStore(filepath.Join(cfg.DataDir, "briefings.json"))

	store := session.NewStore(session.WithTTL(cfg.ContextExpiry()))
	dispatcher := gateway.NewDispatcher(store, engine, gateway.WithTranscript(a.transcript))
	a.gateway = gateway.New(dispatcher, int64(cfg.MaxConcurrent))
	a.delivery = delivery.NewRegistry()

	slog.Info("fairweather configured",
		"data_dir", cfg.DataDir,
		"timezone", loc.String(),
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"calendar_backend", cfg.Calendar.Backend,
		"fallback_location", cfg.FallbackLocation,
		"context_expiry", cfg.ContextExpiry(),
	)
	return a, nil
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	lc := &llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		JSONMode:    true,
	}
	switch cfg.LLM.Provider {
	case "openai":
		return openai.New(lc), nil
	case "gemini":
		p, err := gemini.New(ctx, lc)
		if err != nil {
			return nil, fmt.Errorf("create gemini provider: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}

func (a *app) newSink(cfg *config.Config, httpClient *http.Client, loc *time.Location) (types.SchedulingSink, error) {
	switch cfg.Calendar.Backend {
	case "google":
		return calendar.NewGoogle(
			external.NewClient(httpClient, "google-calendar", external.DefaultRetryPolicy(), userAgent),
			cfg.Calendar.AccessToken,
			calendar.WithGoogleBaseURL(cfg.Calendar.BaseURL),
			calendar.WithCalendarID(cfg.Calendar.CalendarID),
			calendar.WithLocation(loc),
			calendar.WithDuration(cfg.EventDuration()),
		), nil
	case "local":
		local, err := calendar.OpenLocal(eventsDBPath(cfg), cfg.EventDuration())
		if err != nil {
			return nil, fmt.Errorf("open local calendar: %w", err)
		}
		a.closers = append(a.closers, local.Close)
		return local, nil
	}
	return nil, fmt.Errorf("unknown calendar backend %q", cfg.Calendar.Backend)
}

func eventsDBPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "events.db")
}

// briefingTimeout bounds one briefing: every stage of a run plus slack.
func (a *app) briefingTimeout() time.Duration {
	t := a.cfg.Timeouts
	return t.Extract() + t.Forecast() + t.Schedule() + 30*time.Second
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
