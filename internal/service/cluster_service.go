package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dash-gate/dashgate/internal/port/outbound"
)

// ClusterInfo is one configured cluster as reported to the agent. Tokens
// never leave the server.
type ClusterInfo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ClusterService answers questions about the configured clusters.
type ClusterService struct {
	clusters []ClusterInfo
	diag     outbound.Diagnostics
	logger   *slog.Logger
}

// NewClusterService builds a ClusterService over the configured clusters.
func NewClusterService(clusters []ClusterInfo, diag outbound.Diagnostics, logger *slog.Logger) *ClusterService {
	sorted := make([]ClusterInfo, len(clusters))
	copy(sorted, clusters)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &ClusterService{clusters: sorted, diag: diag, logger: logger}
}

// List returns the configured clusters sorted by name.
func (s *ClusterService) List() []ClusterInfo {
	out := make([]ClusterInfo, len(s.clusters))
	copy(out, s.clusters)
	return out
}

// CheckHealth probes one cluster.
func (s *ClusterService) CheckHealth(ctx context.Context, cluster string) (*outbound.HealthStatus, error) {
	status, err := s.diag.CheckHealth(ctx, cluster)
	if err != nil {
		s.logger.Warn("cluster health check failed", "cluster", cluster, "error", err)
		return nil, err
	}
	return status, nil
}

// ListDatasources lists the datasources visible on one cluster.
func (s *ClusterService) ListDatasources(ctx context.Context, cluster string) ([]outbound.Datasource, error) {
	return s.diag.ListDatasources(ctx, cluster)
}
