package mcptool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dash-gate/dashgate/internal/port/outbound"
	"github.com/dash-gate/dashgate/internal/service"
)

type listClustersInput struct{}

type listClustersOutput struct {
	Clusters []service.ClusterInfo `json:"clusters"`
}

type checkClusterHealthInput struct {
	Cluster string `json:"cluster" jsonschema:"cluster to probe"`
}

type checkClusterHealthOutput struct {
	Cluster         string `json:"cluster"`
	Status          string `json:"status"`
	Version         string `json:"version,omitempty"`
	Database        string `json:"database,omitempty"`
	DatasourceCount int    `json:"datasourceCount,omitempty"`
	Error           string `json:"error,omitempty"`
}

// healthOutput maps a probe result to the tool response. An unreachable
// or failing cluster is reported as unhealthy, not as a tool error; the
// detail passes through the usual error sanitizer.
func healthOutput(cluster string, status *outbound.HealthStatus, err error) checkClusterHealthOutput {
	if err != nil {
		return checkClusterHealthOutput{
			Cluster: cluster,
			Status:  "unhealthy",
			Error:   sanitizeError(err).Error(),
		}
	}
	return checkClusterHealthOutput{
		Cluster:         cluster,
		Status:          "healthy",
		Version:         status.Version,
		Database:        status.Database,
		DatasourceCount: status.DatasourceCount,
	}
}

type listDatasourcesInput struct {
	Cluster string `json:"cluster" jsonschema:"cluster to list datasources on"`
}

type listDatasourcesOutput struct {
	Datasources []outbound.Datasource `json:"datasources"`
	Count       int                   `json:"count"`
}

func (s *Server) registerClusterTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_clusters",
		Description: "List the configured Grafana clusters.",
	}, instrument(s, "list_clusters", func(_ context.Context, _ listClustersInput) (listClustersOutput, error) {
		return listClustersOutput{Clusters: s.clusters.List()}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "check_cluster_health",
		Description: "Check the health of one cluster.",
	}, instrument(s, "check_cluster_health", func(ctx context.Context, in checkClusterHealthInput) (checkClusterHealthOutput, error) {
		status, err := s.clusters.CheckHealth(ctx, in.Cluster)
		return healthOutput(in.Cluster, status, err), nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_datasources",
		Description: "List the datasources visible on one cluster.",
	}, instrument(s, "list_datasources", func(ctx context.Context, in listDatasourcesInput) (listDatasourcesOutput, error) {
		sources, err := s.clusters.ListDatasources(ctx, in.Cluster)
		if err != nil {
			return listDatasourcesOutput{}, err
		}
		return listDatasourcesOutput{Datasources: sources, Count: len(sources)}, nil
	}))
}
