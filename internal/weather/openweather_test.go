package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/fairweather/internal/external"
	"github.com/user/fairweather/internal/types"
)

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func testClient() *external.Client {
	policy := external.RetryPolicy{MaxRetries: 0}
	return external.NewClient(nil, "weather-test", policy, "")
}

func forecastBody(slots ...string) string {
	body := `{"list":[`
	for i, s := range slots {
		if i > 0 {
			body += ","
		}
		body += s
	}
	return body + `]}`
}

func slot(at time.Time, desc string, temp, pop float64) string {
	return fmt.Sprintf(`{"dt":%d,"main":{"temp":%g,"feels_like":%g,"humidity":70},"weather":[{"main":"x","description":%q}],"wind":{"speed":3.5},"pop":%g}`,
		at.Unix(), temp, temp+1, desc, pop)
}

func TestForecast_PicksClosestSlot(t *testing.T) {
	var gotPath, gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotQuery.Store(r.URL.RawQuery)
		fmt.Fprint(w, forecastBody(
			slot(now.Add(24*time.Hour), "clear sky", 28, 0.1),
			slot(now.Add(27*time.Hour), "light rain", 26, 0.8),
			slot(now.Add(30*time.Hour), "few clouds", 25, 0.2),
		))
	}))
	defer srv.Close()

	ow := NewOpenWeather(testClient(), "key", WithBaseURL(srv.URL+"/"), WithClock(func() time.Time { return now }))
	report, err := ow.Forecast(context.Background(), now.Add(26*time.Hour), "Singapore")
	require.NoError(t, err)

	assert.Equal(t, "/forecast", gotPath.Load())
	assert.Contains(t, gotQuery.Load(), "units=metric")
	assert.Contains(t, gotQuery.Load(), "q=Singapore")
	assert.Equal(t, "light rain", report.Summary)
	assert.True(t, report.Adverse)
	assert.True(t, now.Add(27*time.Hour).Equal(report.At))

	temp, ok := report.Reading(types.ReadingTemperature)
	assert.True(t, ok)
	assert.Equal(t, 26.0, temp)
	pop, _ := report.Reading(types.ReadingPrecipitationProb)
	assert.InDelta(t, 80.0, pop, 0.001)
}

func TestForecast_BeyondHorizonUsesCurrent(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		fmt.Fprintf(w, `{"name":"Tokyo","dt":%d,"main":{"temp":18,"feels_like":17,"humidity":50},"weather":[{"description":"scattered clouds"}],"wind":{"speed":2}}`, now.Unix())
	}))
	defer srv.Close()

	ow := NewOpenWeather(testClient(), "key", WithBaseURL(srv.URL), WithClock(func() time.Time { return now }))
	report, err := ow.Forecast(context.Background(), now.Add(8*24*time.Hour), "Tokyo")
	require.NoError(t, err)

	assert.Equal(t, "/weather", gotPath.Load())
	assert.Equal(t, "scattered clouds", report.Summary)
	assert.False(t, report.Adverse)
	_, ok := report.Reading(types.ReadingPrecipitationProb)
	assert.False(t, ok)
}

func TestForecast_UnknownCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"cod":"404","message":"city not found"}`)
	}))
	defer srv.Close()

	ow := NewOpenWeather(testClient(), "key", WithBaseURL(srv.URL), WithClock(func() time.Time { return now }))
	_, err := ow.Forecast(context.Background(), now, "Atlantis")
	require.Error(t, err)
	assert.Equal(t, external.CodeUpstreamNotFound, external.CodeOf(err))
	assert.Contains(t, err.Error(), "Atlantis")
}

func TestForecast_InvalidPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"list":[]}`)
	}))
	defer srv.Close()

	ow := NewOpenWeather(testClient(), "key", WithBaseURL(srv.URL), WithClock(func() time.Time { return now }))
	_, err := ow.Forecast(context.Background(), now.Add(time.Hour), "Singapore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func TestForecast_NoAPIKey(t *testing.T) {
	ow := NewOpenWeather(testClient(), "")
	_, err := ow.Forecast(context.Background(), now, "Singapore")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestAssess(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name     string
		summary  string
		readings map[string]float64
		want     bool
	}{
		{"clear", "clear sky", nil, false},
		{"drizzle", "Light Drizzle", nil, true},
		{"thunderstorm", "thunderstorm with heavy rain", nil, true},
		{"snow", "light snow", nil, true},
		{"high pop", "overcast clouds", map[string]float64{types.ReadingPrecipitationProb: 60}, true},
		{"low pop", "overcast clouds", map[string]float64{types.ReadingPrecipitationProb: 59}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assess(tt.summary, tt.readings, th))
		})
	}
}

func TestNewReport_CustomThreshold(t *testing.T) {
	r := NewReport("x", now, "cloudy", map[string]float64{types.ReadingPrecipitationProb: 40}, Thresholds{RainProbabilityPct: 30})
	assert.True(t, r.Adverse)
}
