package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/i474232898/electricity-map/internal/electricity"
	"github.com/i474232898/electricity-map/internal/metrics"
)

// DefaultBaseURL is the Electricity Maps v3 API root.
const DefaultBaseURL = "https://api.electricitymap.org/v3"

// Upstream endpoints, relative to the base URL.
const (
	EndpointPowerLatest   = "power-breakdown/latest"
	EndpointPowerHistory  = "power-breakdown/history"
	EndpointCarbonHistory = "carbon-intensity/history"
	EndpointCarbonLatest  = "carbon-intensity/latest"
)

const authHeader = "auth-token"

// maxBodyBytes caps a single upstream response.
const maxBodyBytes = 16 << 20

// Options configures an ElectricityMapsClient. Zero values take defaults.
type Options struct {
	BaseURL       string
	Token         string
	Zone          string
	Backoff       BackoffConfig
	RatePerSecond float64
	Logger        zerolog.Logger
	Metrics       metrics.Recorder
}

// ElectricityMapsClient implements electricity.Source against the Electricity Maps API.
type ElectricityMapsClient struct {
	baseURL string
	token   string
	zone    string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     zerolog.Logger
	metrics metrics.Recorder
}

// NewElectricityMapsClient creates a client for a single fixed zone.
func NewElectricityMapsClient(client *http.Client, opts Options) *ElectricityMapsClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "electricitymaps",
		MaxRequests: 4,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
	})

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	zone := opts.Zone
	if zone == "" {
		zone = "IL"
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 4)
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Noop{}
	}

	return &ElectricityMapsClient{
		baseURL: baseURL,
		token:   opts.Token,
		zone:    zone,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: opts.Backoff,
			Limiter: limiter,
		},
		circuit: cb,
		log:     opts.Logger,
		metrics: rec,
	}
}

// Zone returns the zone this client fetches.
func (c *ElectricityMapsClient) Zone() string {
	return c.zone
}

// FetchAll issues the four upstream requests concurrently. The first failure
// cancels the remaining requests and fails the whole fetch.
func (c *ElectricityMapsClient) FetchAll(ctx context.Context) (electricity.Bundle, error) {
	if c.token == "" {
		return electricity.Bundle{}, fmt.Errorf("electricity maps api token is not configured")
	}

	var (
		bundle        electricity.Bundle
		powerHistory  historyPayload[electricity.PowerEntry]
		carbonHistory historyPayload[electricity.CarbonEntry]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := c.get(gctx, EndpointPowerLatest)
		bundle.LatestPower = raw
		return err
	})
	g.Go(func() error {
		raw, err := c.get(gctx, EndpointPowerHistory)
		if err != nil {
			return err
		}
		return decodeInto(EndpointPowerHistory, raw, &powerHistory)
	})
	g.Go(func() error {
		raw, err := c.get(gctx, EndpointCarbonHistory)
		if err != nil {
			return err
		}
		return decodeInto(EndpointCarbonHistory, raw, &carbonHistory)
	})
	g.Go(func() error {
		raw, err := c.get(gctx, EndpointCarbonLatest)
		bundle.LatestCarbon = raw
		return err
	})

	if err := g.Wait(); err != nil {
		return electricity.Bundle{}, err
	}

	bundle.PowerHistory = powerHistory.History
	bundle.CarbonHistory = carbonHistory.History
	c.log.Debug().
		Str("zone", c.zone).
		Int("powerHistory", len(bundle.PowerHistory)).
		Int("carbonHistory", len(bundle.CarbonHistory)).
		Msg("fetched upstream series")
	return bundle, nil
}

type historyPayload[T any] struct {
	Zone    string `json:"zone"`
	History []T    `json:"history"`
}

func decodeInto(endpoint string, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	return nil
}

// get fetches one endpoint and returns its body, which must be valid JSON.
func (c *ElectricityMapsClient) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	start := time.Now()
	raw, err := c.doGet(ctx, endpoint)
	c.metrics.ObserveUpstreamRequest(endpoint, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return raw, nil
}

func (c *ElectricityMapsClient) doGet(ctx context.Context, endpoint string) (json.RawMessage, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("zone", c.zone)

		u := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(authHeader, c.token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	return json.RawMessage(body), nil
}
