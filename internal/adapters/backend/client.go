// Package backend is the HTTP client for the Bus2Hike trails API.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/pkg/geospatial"
	"github.com/Hogigo/Bus2Hike/internal/pkg/metrics"
	"github.com/Hogigo/Bus2Hike/internal/pkg/telemetry"
)

const tracerName = "github.com/Hogigo/Bus2Hike/internal/adapters/backend"

// Options configures a Client.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	MaxPaths int
	// HTTPClient overrides the default fasthttp client, e.g. for in-memory
	// listeners in tests.
	HTTPClient *fasthttp.Client
}

// Client implements ports.TrailSearcher and ports.StopFinder over HTTP.
type Client struct {
	baseURL  string
	timeout  time.Duration
	maxPaths int
	http     *fasthttp.Client
	tracer   trace.Tracer
}

// New creates a backend client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &fasthttp.Client{
			Name:                "bus2hike-explorer",
			MaxConnsPerHost:     64,
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			MaxIdleConnDuration: 30 * time.Second,
		}
	}
	return &Client{
		baseURL:  opts.BaseURL,
		timeout:  opts.Timeout,
		maxPaths: opts.MaxPaths,
		http:     hc,
		tracer:   otel.Tracer(tracerName),
	}
}

// SearchTrails calls GET /hikes around (lon, lat).
func (c *Client) SearchTrails(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Add("latitude", formatFloat(lat))
	args.Add("longitude", formatFloat(lon))
	args.Add("diameter", formatFloat(radiusKm))
	if c.maxPaths > 0 {
		args.Add("max_paths", strconv.Itoa(c.maxPaths))
	}

	body, err := c.get(ctx, "/hikes", args)
	if err != nil {
		return nil, err
	}
	trails, err := decodeTrails(body)
	if err != nil {
		metrics.BackendErrors.WithLabelValues("/hikes", "decode").Inc()
		return nil, err
	}
	return trails, nil
}

// FindStops calls GET /transport-stops and keeps the stops within rangeKm of
// (lon, lat), since the backend may ignore the range filter.
func (c *Client) FindStops(ctx context.Context, lon, lat, rangeKm float64) ([]domain.Stop, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Add("longitude", formatFloat(lon))
	args.Add("latitude", formatFloat(lat))
	args.Add("range_km", formatFloat(rangeKm))

	body, err := c.get(ctx, "/transport-stops", args)
	if err != nil {
		return nil, err
	}
	all, err := decodeStops(body)
	if err != nil {
		metrics.BackendErrors.WithLabelValues("/transport-stops", "decode").Inc()
		return nil, err
	}

	origin := domain.GeoPoint{Lat: lat, Lon: lon}
	limit := rangeKm * 1000
	stops := all[:0]
	for _, s := range all {
		d := geospatial.Distance(origin, s.Location)
		if d > limit {
			continue
		}
		s.Distance = &d
		stops = append(stops, s)
	}
	return stops, nil
}

// Ping checks that the backend answers on /transport-stops.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/transport-stops", nil)
	return err
}

func (c *Client) get(ctx context.Context, path string, args *fasthttp.Args) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanBackendRequest, trace.WithAttributes(
		attribute.String("http.method", fasthttp.MethodGet),
		attribute.String("http.route", path),
	))
	defer span.End()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.baseURL + path
	if args != nil && args.Len() > 0 {
		uri += "?" + args.String()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	err := c.http.DoDeadline(req, resp, deadline)
	metrics.BackendRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())

	if err != nil {
		kind := "transport"
		if errors.Is(err, fasthttp.ErrTimeout) {
			kind = "timeout"
		}
		metrics.BackendErrors.WithLabelValues(path, kind).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("GET %s: %w: %w", path, domain.ErrTransport, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status < 200 || status > 299 {
		metrics.BackendErrors.WithLabelValues(path, "status").Inc()
		span.SetStatus(codes.Error, "unexpected status")
		return nil, fmt.Errorf("GET %s: %w: status %d", path, domain.ErrTransport, status)
	}

	// resp is released on return
	body := append([]byte(nil), resp.Body()...)
	return body, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
