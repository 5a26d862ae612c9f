package outbound

import (
	"context"
	"time"

	"github.com/dash-gate/dashgate/internal/domain/resource"
)

// HealthStatus describes the reachability of one cluster.
type HealthStatus struct {
	// Version is the remote server version, when reported.
	Version string
	// Database is the remote database health ("ok" when healthy).
	Database string
	// DatasourceCount is the number of datasources visible on the
	// cluster, -1 when the datasource listing was unavailable.
	DatasourceCount int
}

// Datasource is the reduced datasource view exposed to the agent.
type Datasource struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	IsDefault bool   `json:"isDefault"`
	ReadOnly  bool   `json:"readOnly"`
}

// Snapshot is the result of a snapshot creation.
type Snapshot struct {
	Key       string `json:"key"`
	DeleteKey string `json:"deleteKey"`
	URL       string `json:"url"`
}

// RenderRequest parameterizes a panel render.
type RenderRequest struct {
	DashboardUID string
	PanelID      int
	Width        int
	Height       int
	From         string
	To           string
}

// Diagnostics groups the pass-through operations: health, datasource
// listing, snapshots and panel rendering. These are gated like everything
// else but otherwise forwarded opaquely.
type Diagnostics interface {
	CheckHealth(ctx context.Context, cluster string) (*HealthStatus, error)
	ListDatasources(ctx context.Context, cluster string) ([]Datasource, error)
	CreateSnapshot(ctx context.Context, cluster string, spec resource.Spec, name string, expires time.Duration) (*Snapshot, error)
	RenderPanel(ctx context.Context, cluster string, req RenderRequest) ([]byte, error)
}
