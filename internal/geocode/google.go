package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cafemap/cafemap/internal/cafemap"
)

const defaultGoogleEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleConfig configures the primary provider. APIKey is required; a
// missing key is a ConfigError for this provider only and the resolver
// continues with the fallback.
type GoogleConfig struct {
	APIKey  string
	BaseURL string
}

// Google is the credentialed primary geocoding provider.
type Google struct {
	cfg    GoogleConfig
	client *http.Client
}

// NewGoogle builds the provider or reports the missing credential.
func NewGoogle(cfg GoogleConfig, client *http.Client) (*Google, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &cafemap.ConfigError{Stage: "geocode/google", Reason: "api key not set"}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Google{cfg: cfg, client: client}, nil
}

// Name implements Provider.
func (g *Google) Name() string { return "google" }

// Geocode queries the Google geocoding API for the address.
func (g *Google) Geocode(ctx context.Context, address string) (*cafemap.GeocodeResult, error) {
	endpoint := g.cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultGoogleEndpoint
	}
	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build google request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &cafemap.ProviderError{Provider: g.Name(), Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &cafemap.ProviderError{
			Provider:  g.Name(),
			Transient: true,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &cafemap.ProviderError{
			Provider: g.Name(),
			Err:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	var body struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress string `json:"formatted_address"`
			Geometry         struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &cafemap.ProviderError{Provider: g.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if body.Status == "OVER_QUERY_LIMIT" {
		return nil, &cafemap.ProviderError{
			Provider:  g.Name(),
			Transient: true,
			Err:       fmt.Errorf("status %s", body.Status),
		}
	}
	if body.Status != "OK" || len(body.Results) == 0 {
		return nil, ErrNoMatch
	}

	top := body.Results[0]
	return &cafemap.GeocodeResult{
		Coordinate: cafemap.Coordinate{Lat: top.Geometry.Location.Lat, Lng: top.Geometry.Location.Lng},
		Region:     top.FormattedAddress,
		Provider:   g.Name(),
	}, nil
}
