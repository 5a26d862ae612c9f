package grafana

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dash-gate/dashgate/internal/domain/resource"
	"github.com/dash-gate/dashgate/internal/port/outbound"
)

// CheckHealth implements outbound.Diagnostics. The datasource count is
// best effort: a token without datasource read scope still yields a
// usable health report.
func (c *Client) CheckHealth(ctx context.Context, cluster string) (*outbound.HealthStatus, error) {
	var health struct {
		Version  string `json:"version"`
		Database string `json:"database"`
	}
	if err := c.doJSON(ctx, cluster, "GET", "/api/health", nil, nil, &health); err != nil {
		return nil, err
	}
	status := &outbound.HealthStatus{
		Version:         health.Version,
		Database:        health.Database,
		DatasourceCount: -1,
	}
	if sources, err := c.ListDatasources(ctx, cluster); err == nil {
		status.DatasourceCount = len(sources)
	}
	return status, nil
}

// ListDatasources implements outbound.Diagnostics.
func (c *Client) ListDatasources(ctx context.Context, cluster string) ([]outbound.Datasource, error) {
	var sources []outbound.Datasource
	if err := c.doJSON(ctx, cluster, "GET", "/api/datasources", nil, nil, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// CreateSnapshot implements outbound.Diagnostics. An expiry of zero means
// the snapshot never expires.
func (c *Client) CreateSnapshot(ctx context.Context, cluster string, spec resource.Spec, name string, expires time.Duration) (*outbound.Snapshot, error) {
	payload := map[string]any{
		"dashboard": spec,
		"name":      name,
		"expires":   int(expires.Seconds()),
	}
	var snap outbound.Snapshot
	if err := c.doJSON(ctx, cluster, "POST", "/api/snapshots", nil, payload, &snap); err != nil {
		return nil, err
	}
	if snap.URL == "" {
		cl, err := c.endpoint(cluster)
		if err != nil {
			return nil, err
		}
		snap.URL = cl.URL + "/dashboard/snapshot/" + snap.Key
	}
	return &snap, nil
}

// RenderPanel implements outbound.Diagnostics. It returns the rendered
// PNG bytes from the image renderer.
func (c *Client) RenderPanel(ctx context.Context, cluster string, req outbound.RenderRequest) ([]byte, error) {
	query := url.Values{}
	query.Set("panelId", strconv.Itoa(req.PanelID))
	if req.Width > 0 {
		query.Set("width", strconv.Itoa(req.Width))
	}
	if req.Height > 0 {
		query.Set("height", strconv.Itoa(req.Height))
	}
	if req.From != "" {
		query.Set("from", req.From)
	}
	if req.To != "" {
		query.Set("to", req.To)
	}

	path := fmt.Sprintf("/render/d-solo/%s/panel", url.PathEscape(req.DashboardUID))
	return c.do(ctx, cluster, "GET", path, query, nil)
}
