// Package grafana implements the resource store and diagnostics ports on
// top of the Grafana HTTP API, one authenticated endpoint per configured
// cluster.
package grafana

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dash-gate/dashgate/internal/domain/access"
)

const (
	// defaultTimeout bounds every upstream call.
	defaultTimeout = 30 * time.Second

	// maxResponseBodySize caps upstream response bodies. Rendered panel
	// images are the largest expected payload.
	maxResponseBodySize = 32 * 1024 * 1024 // 32MB

	// errorBodyPreview is how much of an unparseable error body is kept
	// in the APIError message.
	errorBodyPreview = 512
)

// Cluster is one named Grafana endpoint with its service account token.
type Cluster struct {
	Name  string
	URL   string
	Token string
}

// Client talks to one or more Grafana clusters. It implements
// outbound.ResourceStore and outbound.Diagnostics. Folder paths are
// cached per cluster and invalidated on folder writes; everything else
// is stateless, so the client is safe for concurrent use.
type Client struct {
	clusters   map[string]Cluster
	httpClient *http.Client
	tracer     trace.Tracer
	observe    func(cluster string, statusCode int)

	mu          sync.RWMutex
	folderPaths map[string]string // "<cluster>/<folderUID>" -> absolute path
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRequestObserver registers a callback invoked after every completed
// upstream request with the cluster name and HTTP status code. Transport
// failures report status 0.
func WithRequestObserver(fn func(cluster string, statusCode int)) Option {
	return func(c *Client) { c.observe = fn }
}

// NewClient builds a Client over the given clusters.
func NewClient(clusters []Cluster, opts ...Option) *Client {
	byName := make(map[string]Cluster, len(clusters))
	for _, cl := range clusters {
		byName[cl.Name] = cl
	}
	c := &Client{
		clusters: byName,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tracer:      otel.Tracer("dashgate/grafana"),
		folderPaths: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clusters returns the configured cluster names, unordered.
func (c *Client) Clusters() []string {
	names := make([]string, 0, len(c.clusters))
	for name := range c.clusters {
		names = append(names, name)
	}
	return names
}

func (c *Client) endpoint(cluster string) (Cluster, error) {
	cl, ok := c.clusters[cluster]
	if !ok {
		return Cluster{}, fmt.Errorf("%w: unknown cluster %q", access.ErrInvalidArgument, cluster)
	}
	return cl, nil
}

// doJSON performs one API call and decodes the response into out (out may
// be nil to discard the body). A 404 maps to access.ErrNotFound; any other
// non-2xx status becomes an *APIError.
func (c *Client) doJSON(ctx context.Context, cluster, method, path string, query url.Values, body, out any) error {
	raw, err := c.do(ctx, cluster, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, cluster, method, path string, query url.Values, body any) ([]byte, error) {
	cl, err := c.endpoint(cluster)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "grafana.request", trace.WithAttributes(
		attribute.String("cluster", cluster),
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	u := cl.URL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if cl.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.Token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if c.observe != nil {
			c.observe(cluster, 0)
		}
		return nil, fmt.Errorf("cluster %q: %w", cluster, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if c.observe != nil {
		c.observe(cluster, resp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("cluster %q: read response: %w", cluster, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode == http.StatusNotFound {
		return nil, access.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return nil, &APIError{
			Cluster:    cluster,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}
	return respBody, nil
}

// errorMessage extracts Grafana's {"message": ...} field, falling back to
// a truncated raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	if len(body) > errorBodyPreview {
		body = body[:errorBodyPreview]
	}
	return string(body)
}
