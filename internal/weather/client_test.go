package weather

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	endpoint, outcome string
}

type spyMetrics struct {
	requests []recordedRequest
}

func (m *spyMetrics) RecordImport(string, int, int) {}
func (m *spyMetrics) RecordInvitation(string) {}
func (m *spyMetrics) RecordEmail(string, string) {}
func (m *spyMetrics) RecordHTTPStatus(int) {}
func (m *spyMetrics) RecordWeatherRequest(endpoint, outcome string, _ time.Duration) {
	m.requests = append(m.requests, recordedRequest{endpoint, outcome})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *spyMetrics) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	spy := &spyMetrics{}
	c := NewClient(ts.Client(), "test-key", spy, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	c.endpoint = ts.URL
	return c, spy
}

func TestClient_Current(t *testing.T) {
	c, spy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "-34.6037", q.Get("lat"))
		assert.Equal(t, "-58.3816", q.Get("lon"))
		assert.Equal(t, "test-key", q.Get("appid"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "es", q.Get("lang"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Buenos Aires","dt":1717243200,"main":{"temp":14.2,"feels_like":13.1,"temp_min":12,"temp_max":16,"pressure":1018,"humidity":72},"weather":[{"description":"nubes dispersas","icon":"03d"}],"wind":{"speed":4.1}}`))
	})

	cur, err := c.Current(context.Background(), Coordinates{Lat: -34.6037, Lon: -58.3816})
	require.NoError(t, err)
	assert.Equal(t, "Buenos Aires", cur.City)
	assert.Equal(t, 14.2, cur.Temp)
	assert.Equal(t, 72, cur.Humidity)
	assert.Equal(t, "nubes dispersas", cur.Description)
	assert.Equal(t, "03d", cur.Icon)
	assert.Equal(t, []recordedRequest{{"weather", "success"}}, spy.requests)
}

func TestClient_Forecast(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		w.Write([]byte(`{"city":{"name":"Rosario","timezone":-10800},"list":[
			{"dt":1717243200,"main":{"temp":10},"weather":[{"description":"lluvia ligera","icon":"10d"}],"pop":0.45},
			{"dt":1717254000,"main":{"temp":11},"weather":[],"pop":0}
		]}`))
	})

	entries, city, tz, err := c.Forecast(context.Background(), Coordinates{Lat: 1, Lon: 2})
	require.NoError(t, err)
	assert.Equal(t, "Rosario", city)
	assert.Equal(t, -10800, tz)
	require.Len(t, entries, 2)
	assert.Equal(t, 0.45, entries[0].Pop)
	assert.Equal(t, "lluvia ligera", entries[0].Description)
	assert.Equal(t, time.Unix(1717243200, 0).UTC(), entries[0].Time)
	assert.Empty(t, entries[1].Description)
}

func TestClient_ErrorStatus(t *testing.T) {
	c, spy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	})

	_, err := c.Current(context.Background(), Coordinates{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, []recordedRequest{{"weather", "http_401"}}, spy.requests)
}

func TestClient_InvalidJSON(t *testing.T) {
	c, spy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, _, _, err := c.Forecast(context.Background(), Coordinates{})
	require.Error(t, err)
	assert.Equal(t, "decode_error", spy.requests[0].outcome)
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient(http.DefaultClient, "", nil, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	assert.False(t, c.Configured())
	_, err := c.Current(context.Background(), Coordinates{})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}
