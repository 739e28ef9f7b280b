package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/fairweather/internal/external"
	"github.com/user/fairweather/internal/types"
)

const (
	DefaultGoogleBaseURL = "https://www.googleapis.com/calendar/v3"
	DefaultCalendarID    = "primary"
)

var ErrNoToken = errors.New("calendar: google access token not configured")

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type reminderOverride struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type reminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []reminderOverride `json:"overrides"`
}

type eventRequest struct {
	Summary     string    `json:"summary"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
	Reminders   reminders `json:"reminders"`
}

type eventResponse struct {
	ID       string `json:"id"`
	HTMLLink string `json:"htmlLink"`
}

// Google writes events to a Google Calendar with a static bearer token.
type Google struct {
	client     *external.Client
	baseURL    string
	calendarID string
	token      string
	loc        *time.Location
	duration   time.Duration
}

type GoogleOption func(*Google)

func WithGoogleBaseURL(u string) GoogleOption {
	return func(g *Google) {
		if u != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithCalendarID(id string) GoogleOption {
	return func(g *Google) {
		if id != "" {
			g.calendarID = id
		}
	}
}

// WithLocation sets the zone event times are written in.
func WithLocation(loc *time.Location) GoogleOption {
	return func(g *Google) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func WithDuration(d time.Duration) GoogleOption {
	return func(g *Google) { g.duration = durationOr(d) }
}

func NewGoogle(client *external.Client, token string, opts ...GoogleOption) *Google {
	g := &Google{
		client:     client,
		baseURL:    DefaultGoogleBaseURL,
		calendarID: DefaultCalendarID,
		token:      token,
		loc:        time.UTC,
		duration:   DefaultDuration,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Schedule implements types.SchedulingSink.
func (g *Google) Schedule(ctx context.Context, activity string, when time.Time, location string) (*types.ScheduledEvent, error) {
	if g.token == "" {
		return nil, ErrNoToken
	}

	start := when.In(g.loc)
	body := eventRequest{
		Summary:     activity,
		Location:    location,
		Description: description(activity),
		Start:       eventTime{DateTime: start.Format(time.RFC3339), TimeZone: g.loc.String()},
		End:         eventTime{DateTime: start.Add(g.duration).Format(time.RFC3339), TimeZone: g.loc.String()},
		Reminders: reminders{
			Overrides: []reminderOverride{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("calendar: encode event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", g.baseURL, url.PathEscape(g.calendarID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("calendar: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", "application/json")

	var resp eventResponse
	if err := g.client.DoJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("calendar: insert event: %w", err)
	}
	if resp.ID == "" {
		return nil, errors.New("calendar: insert event: response has no id")
	}

	slog.Info("calendar event created", "id", resp.ID, "activity", activity, "start", start)
	return &types.ScheduledEvent{ID: resp.ID, Link: resp.HTMLLink}, nil
}
