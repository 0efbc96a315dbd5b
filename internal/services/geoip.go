package services

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/example/nepgrocery/internal/security"
)

// ErrGeoIPUnavailable marks a lookup that failed or returned no usable
// position. Callers in the login path swallow it and skip the risk check;
// a login is never blocked solely because geolocation is down.
var ErrGeoIPUnavailable = errors.New("geoip lookup unavailable")

// GeoIPService resolves an IP address to an approximate coordinate using the
// ip-api.com JSON endpoint.
type GeoIPService struct {
	client *resty.Client
}

// NewGeoIPService constructs a GeoIPService against the given base URL.
func NewGeoIPService(baseURL string) *GeoIPService {
	if baseURL == "" {
		baseURL = "http://ip-api.com"
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second)

	return &GeoIPService{client: client}
}

type geoIPResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Lookup resolves an IP to coordinates. Loopback and private addresses are
// unroutable and resolve to nothing.
func (s *GeoIPService) Lookup(ip string) (*security.Coordinates, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return nil, fmt.Errorf("%w: non-routable address %q", ErrGeoIPUnavailable, ip)
	}

	var result geoIPResponse
	resp, err := s.client.R().
		SetResult(&result).
		Get("/json/" + ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoIPUnavailable, err)
	}

	if resp.IsError() || result.Status != "success" {
		log.Debug().Str("ip", ip).Str("message", result.Message).Msg("geoip lookup returned no position")
		return nil, fmt.Errorf("%w: %s", ErrGeoIPUnavailable, result.Message)
	}

	return &security.Coordinates{Lat: result.Lat, Lon: result.Lon}, nil
}
