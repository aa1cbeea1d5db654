// Package prediction talks to the traffic, arrival and weather providers.
//
// Every call is independent and never fails from the caller's point of view:
// network errors, non-2xx answers, undecodable bodies and timeouts are logged,
// counted and turned into a nil result ("no data").
package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	ProviderTraffic = "traffic"
	ProviderArrival = "arrival"
	ProviderWeather = "weather"

	maxBodyBytes = 1 << 20
)

type TrafficDelay struct {
	DelayMinutes int    `json:"delay_minutes"`
	Reason       string `json:"reason"`
}

type Arrival struct {
	EstimatedMinutes *int `json:"estimated_minutes"`
}

type WeatherAlert struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type WeatherReport struct {
	Alerts []WeatherAlert `json:"alerts"`
}

// Provider is what the aggregator needs; *Client implements it.
type Provider interface {
	TrafficDelay(ctx context.Context, routeID, busID string) *TrafficDelay
	BusArrival(ctx context.Context, scheduleID string) *Arrival
	WeatherAlerts(ctx context.Context, routeID string) *WeatherReport
}

type ResponseCache interface {
	GetResponse(ctx context.Context, key string) ([]byte, error)
	SetResponse(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

type Config struct {
	TrafficURL string
	ArrivalURL string
	WeatherURL string
	Timeout    time.Duration
	CacheTTL   time.Duration
}

type Client struct {
	http  *http.Client
	cfg   Config
	cache ResponseCache
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func WithCache(cache ResponseCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	client := &Client{
		http: &http.Client{},
		cfg:  cfg,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) TrafficDelay(ctx context.Context, routeID, busID string) *TrafficDelay {
	query := url.Values{"route_id": {routeID}, "bus_id": {busID}}
	var out TrafficDelay
	if !c.fetch(ctx, ProviderTraffic, joinURL(c.cfg.TrafficURL, "/traffic/delay")+"?"+query.Encode(), &out) {
		return nil
	}
	return &out
}

func (c *Client) BusArrival(ctx context.Context, scheduleID string) *Arrival {
	var out Arrival
	if !c.fetch(ctx, ProviderArrival, joinURL(c.cfg.ArrivalURL, "/arrival/"+url.PathEscape(scheduleID)), &out) {
		return nil
	}
	return &out
}

func (c *Client) WeatherAlerts(ctx context.Context, routeID string) *WeatherReport {
	query := url.Values{"route_id": {routeID}}
	var out WeatherReport
	if !c.fetch(ctx, ProviderWeather, joinURL(c.cfg.WeatherURL, "/weather/alerts")+"?"+query.Encode(), &out) {
		return nil
	}
	return &out
}

var errNoData = errors.New("no data")

// fetch reports whether out was filled.
func (c *Client) fetch(ctx context.Context, provider, target string, out any) bool {
	logger := log.FromContext(ctx).WithFields(logrus.Fields{
		"provider": provider,
		"url":      target,
	})
	start := time.Now()
	defer func() {
		metrics.PredictionDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	cacheKey := provider + ":" + target
	if body := c.cached(ctx, cacheKey); body != nil {
		if err := json.Unmarshal(body, out); err == nil {
			metrics.PredictionCalls.WithLabelValues(provider, "cached").Inc()
			logger.Debug("prediction served from cache")
			return true
		}
	}

	body, err := c.get(ctx, target)
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, errNoData):
			outcome = "no_data"
			logger.Debug("provider has no data")
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
			logger.WithError(err).Warn("provider call timed out")
		default:
			logger.WithError(err).Warn("provider call failed")
		}
		metrics.PredictionCalls.WithLabelValues(provider, outcome).Inc()
		return false
	}

	if err := json.Unmarshal(body, out); err != nil {
		metrics.PredictionCalls.WithLabelValues(provider, "error").Inc()
		logger.WithError(err).Warn("provider returned an undecodable body")
		return false
	}

	metrics.PredictionCalls.WithLabelValues(provider, "ok").Inc()
	logger.WithField("duration", time.Since(start)).Debug("provider call succeeded")
	c.store(ctx, cacheKey, body)
	return true
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, errNoData
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Client) cached(ctx context.Context, key string) []byte {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return nil
	}
	body, err := c.cache.GetResponse(ctx, key)
	if err != nil {
		log.FromContext(ctx).WithError(err).Debug("prediction cache read failed")
		return nil
	}
	return body
}

func (c *Client) store(ctx context.Context, key string, body []byte) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return
	}
	if err := c.cache.SetResponse(ctx, key, body, c.cfg.CacheTTL); err != nil {
		log.FromContext(ctx).WithError(err).Debug("prediction cache write failed")
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

var _ Provider = (*Client)(nil)
