// Package config loads fairweather's settings from a JSON or YAML file,
// an optional .env file and environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider       string  `json:"provider" yaml:"provider" validate:"oneof=gemini openai"`
	BaseURL        string  `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKey         string  `json:"api_key" yaml:"api_key"`
	Model          string  `json:"model" yaml:"model"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	Temperature    float32 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxInputTokens int     `json:"max_input_tokens" yaml:"max_input_tokens" validate:"gte=0"`
}

type ConditionsConfig struct {
	RainProbabilityThreshold float64 `json:"rain_probability_threshold" yaml:"rain_probability_threshold" validate:"gt=0,lte=100"`
	HotCelsius               float64 `json:"hot_celsius" yaml:"hot_celsius" validate:"gtfield=CoolCelsius"`
	CoolCelsius              float64 `json:"cool_celsius" yaml:"cool_celsius"`
}

type TimeoutsConfig struct {
	ExtractSeconds  int `json:"extract_seconds" yaml:"extract_seconds" validate:"min=1"`
	ForecastSeconds int `json:"forecast_seconds" yaml:"forecast_seconds" validate:"min=1"`
	ScheduleSeconds int `json:"schedule_seconds" yaml:"schedule_seconds" validate:"min=1"`
}

type WeatherConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
}

type CalendarConfig struct {
	Backend     string `json:"backend" yaml:"backend" validate:"oneof=local google"`
	CalendarID  string `json:"calendar_id" yaml:"calendar_id"`
	AccessToken string `json:"access_token" yaml:"access_token" validate:"required_if=Backend google"`
	BaseURL     string `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
}

type TelegramConfig struct {
	Token string `json:"token" yaml:"token"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Listen  string `json:"listen" yaml:"listen" validate:"required_if=Enabled true"`
}

type Config struct {
	DataDir       string `json:"data_dir" yaml:"data_dir" validate:"required"`
	LogLevel      string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	MaxConcurrent int    `json:"max_concurrent" yaml:"max_concurrent" validate:"min=1"`
	Timezone      string `json:"timezone" yaml:"timezone" validate:"required"`

	FallbackLocation            string `json:"fallback_location" yaml:"fallback_location" validate:"required"`
	ContextExpirySeconds        int    `json:"context_expiry_seconds" yaml:"context_expiry_seconds" validate:"min=1"`
	EventDefaultDurationMinutes int    `json:"event_default_duration_minutes" yaml:"event_default_duration_minutes" validate:"min=1"`

	Conditions ConditionsConfig `json:"conditions" yaml:"conditions"`
	Timeouts   TimeoutsConfig   `json:"timeouts" yaml:"timeouts"`
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Weather    WeatherConfig    `json:"weather" yaml:"weather"`
	Calendar   CalendarConfig   `json:"calendar" yaml:"calendar"`
	Telegram   TelegramConfig   `json:"telegram" yaml:"telegram"`
	HTTP       HTTPConfig       `json:"http" yaml:"http"`
}

// envOverrides are applied after the file. Empty values leave the file
// setting alone.
type envOverrides struct {
	TelegramToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL"`
	WeatherAPIKey    string `envconfig:"OPENWEATHER_API_KEY"`
	CalendarToken    string `envconfig:"GOOGLE_CALENDAR_TOKEN"`
	FallbackLocation string `envconfig:"FALLBACK_LOCATION"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{
		DataDir:                     filepath.Join(os.Getenv("HOME"), ".fairweather"),
		LogLevel:                    "info",
		MaxConcurrent:               4,
		Timezone:                    "Asia/Singapore",
		FallbackLocation:            "Singapore",
		ContextExpirySeconds:        600,
		EventDefaultDurationMinutes: 60,
	}
	cfg.Conditions = ConditionsConfig{RainProbabilityThreshold: 60, HotCelsius: 30, CoolCelsius: 20}
	cfg.Timeouts = TimeoutsConfig{ExtractSeconds: 15, ForecastSeconds: 10, ScheduleSeconds: 10}
	cfg.LLM.Provider = "gemini"
	cfg.LLM.Model = "gemini-2.0-flash"
	cfg.LLM.MaxTokens = 1024
	cfg.LLM.Temperature = 0.1
	cfg.LLM.MaxInputTokens = 2000
	cfg.Weather.BaseURL = "https://api.openweathermap.org/data/2.5"
	cfg.Calendar.Backend = "local"
	cfg.Calendar.CalendarID = "primary"
	cfg.HTTP.Listen = "127.0.0.1:8080"
	return cfg
}

// Load reads path over the defaults, writing the defaults there if the file
// does not exist, then applies .env and environment overrides. It does not
// validate; call Validate before serving.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads each file that exists. godotenv never overrides
// variables already set in the process.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if env.TelegramToken != "" {
		cfg.Telegram.Token = env.TelegramToken
	}
	switch cfg.LLM.Provider {
	case "gemini":
		if env.GeminiAPIKey != "" {
			cfg.LLM.APIKey = env.GeminiAPIKey
		}
	case "openai":
		if env.OpenAIAPIKey != "" {
			cfg.LLM.APIKey = env.OpenAIAPIKey
		}
		if env.OpenAIBaseURL != "" {
			cfg.LLM.BaseURL = env.OpenAIBaseURL
		}
	}
	if env.WeatherAPIKey != "" {
		cfg.Weather.APIKey = env.WeatherAPIKey
	}
	if env.CalendarToken != "" {
		cfg.Calendar.AccessToken = env.CalendarToken
	}
	if env.FallbackLocation != "" {
		cfg.FallbackLocation = env.FallbackLocation
	}
	if env.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(env.LogLevel)
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and that the timezone exists.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured zone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ContextExpiry() time.Duration {
	return time.Duration(c.ContextExpirySeconds) * time.Second
}

func (c *Config) EventDuration() time.Duration {
	return time.Duration(c.EventDefaultDurationMinutes) * time.Minute
}

func (t TimeoutsConfig) Extract() time.Duration  { return time.Duration(t.ExtractSeconds) * time.Second }
func (t TimeoutsConfig) Forecast() time.Duration { return time.Duration(t.ForecastSeconds) * time.Second }
func (t TimeoutsConfig) Schedule() time.Duration { return time.Duration(t.ScheduleSeconds) * time.Second }

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func decode(path string, data []byte, out any) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, out)
	}
	return json.Unmarshal(data, out)
}

func encode(path string, v any) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to a nested map through its JSON form, so numbers
// come back as float64.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg as a flat map with dot-separated keys.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := decode(path, data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// GetValue returns the value stored under key in the file at path. Missing
// files are created with defaults first.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under key in the existing file at path. The value is
// parsed as JSON when possible so numbers and booleans keep their type;
// anything else is stored as a string.
func SetValue(path, key, value string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	flat := Flatten(m)
	flat[key] = parsed

	data, err := encode(path, Unflatten(flat))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}
