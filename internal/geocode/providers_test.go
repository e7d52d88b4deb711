package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cafemap/cafemap/internal/cafemap"
)

func TestGoogleGeocode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "12 Baker Street", r.URL.Query().Get("address"))
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"formatted_address": "12 Baker St, London, UK",
				"geometry": {"location": {"lat": 51.52, "lng": -0.156}}
			}]
		}`))
	}))
	defer srv.Close()

	g, err := NewGoogle(GoogleConfig{APIKey: "test-key", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	result, err := g.Geocode(context.Background(), "12 Baker Street")
	require.NoError(t, err)
	require.Equal(t, cafemap.Coordinate{Lat: 51.52, Lng: -0.156}, result.Coordinate)
	require.Equal(t, "12 Baker St, London, UK", result.Region)
	require.Equal(t, "google", result.Provider)
}

func TestGoogleZeroResultsIsNoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	g, err := NewGoogle(GoogleConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = g.Geocode(context.Background(), "nowhere")
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestGoogleQuotaExceededIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "OVER_QUERY_LIMIT", "results": []}`))
	}))
	defer srv.Close()

	g, err := NewGoogle(GoogleConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = g.Geocode(context.Background(), "somewhere")
	var pe *cafemap.ProviderError
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Transient)
}

func TestGoogleServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g, err := NewGoogle(GoogleConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = g.Geocode(context.Background(), "somewhere")
	var pe *cafemap.ProviderError
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Transient)
}

func TestNewGoogleRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewGoogle(GoogleConfig{}, nil)
	var cfgErr *cafemap.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestNominatimGeocode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "台北市大安區和平東路二段96號", r.URL.Query().Get("q"))
		require.Equal(t, "ops@example.com", r.URL.Query().Get("email"))
		require.Equal(t, "cafemap/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
			"lat": "25.0268",
			"lon": "121.5435",
			"display_name": "和平東路二段, 大安區, 台北市, 台灣"
		}]`))
	}))
	defer srv.Close()

	n := NewNominatim(NominatimConfig{Email: "ops@example.com", BaseURL: srv.URL}, srv.Client())

	result, err := n.Geocode(context.Background(), "台北市大安區和平東路二段96號")
	require.NoError(t, err)
	require.InDelta(t, 25.0268, result.Coordinate.Lat, 1e-9)
	require.InDelta(t, 121.5435, result.Coordinate.Lng, 1e-9)
	require.Contains(t, result.Region, "台灣")
	require.Equal(t, "nominatim", result.Provider)
}

func TestNominatimEmptyResultIsNoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	n := NewNominatim(NominatimConfig{BaseURL: srv.URL}, srv.Client())
	_, err := n.Geocode(context.Background(), "nowhere")
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestNominatimRateLimitedIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewNominatim(NominatimConfig{BaseURL: srv.URL}, srv.Client())
	_, err := n.Geocode(context.Background(), "somewhere")
	var pe *cafemap.ProviderError
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Transient)
}
