package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cafemap/cafemap/internal/cafemap"
)

const defaultNominatimEndpoint = "https://nominatim.openstreetmap.org/search"

// NominatimConfig configures the keyless fallback provider. Email is sent
// along per the usage policy; UserAgent identifies the crawler.
type NominatimConfig struct {
	Email     string
	UserAgent string
	BaseURL   string
}

// Nominatim is the always-available fallback provider.
type Nominatim struct {
	cfg    NominatimConfig
	client *http.Client
}

// NewNominatim builds the provider. No credentials are required.
func NewNominatim(cfg NominatimConfig, client *http.Client) *Nominatim {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cafemap/1.0"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Nominatim{cfg: cfg, client: client}
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

// Geocode queries the Nominatim search API for the address.
func (n *Nominatim) Geocode(ctx context.Context, address string) (*cafemap.GeocodeResult, error) {
	endpoint := n.cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultNominatimEndpoint
	}
	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("limit", "1")
	if n.cfg.Email != "" {
		params.Set("email", n.cfg.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build nominatim request: %w", err)
	}
	req.Header.Set("User-Agent", n.cfg.UserAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &cafemap.ProviderError{Provider: n.Name(), Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &cafemap.ProviderError{
			Provider:  n.Name(),
			Transient: true,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &cafemap.ProviderError{
			Provider: n.Name(),
			Err:      fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	var places []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, &cafemap.ProviderError{Provider: n.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(places) == 0 {
		return nil, ErrNoMatch
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, &cafemap.ProviderError{Provider: n.Name(), Err: fmt.Errorf("parse lat: %w", err)}
	}
	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, &cafemap.ProviderError{Provider: n.Name(), Err: fmt.Errorf("parse lon: %w", err)}
	}
	return &cafemap.GeocodeResult{
		Coordinate: cafemap.Coordinate{Lat: lat, Lng: lng},
		Region:     places[0].DisplayName,
		Provider:   n.Name(),
	}, nil
}
