// Package mcptool exposes the gated dashboard operations as MCP tools
// over stdio.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dash-gate/dashgate/internal/adapter/outbound/grafana"
	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/service"
)

const serverName = "dashgate"

// Server wires the application services to the MCP tool surface.
type Server struct {
	dashboards *service.DashboardService
	folders    *service.FolderService
	clusters   *service.ClusterService
	logger     *slog.Logger
	metrics    *Metrics

	mcpServer *mcp.Server
	toolCalls metric.Int64Counter
}

// NewServer builds the MCP server and registers every tool.
func NewServer(version string, dashboards *service.DashboardService, folders *service.FolderService, clusters *service.ClusterService, metrics *Metrics, logger *slog.Logger) *Server {
	meter := otel.Meter("dashgate/mcptool")
	toolCalls, err := meter.Int64Counter("dashgate.tool.calls",
		metric.WithDescription("Tool calls by tool name and status"))
	if err != nil {
		// The default no-op meter never errors; a real provider failing
		// here only costs the counter.
		logger.Warn("tool call counter unavailable", "error", err)
	}

	s := &Server{
		dashboards: dashboards,
		folders:    folders,
		clusters:   clusters,
		logger:     logger,
		metrics:    metrics,
		toolCalls:  toolCalls,
	}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version,
	}, nil)
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the context is canceled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "server", serverName)
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.registerClusterTools()
	s.registerDashboardTools()
	s.registerFolderTools()
}

// instrument wraps a tool handler with logging, Prometheus metrics and
// the OTel call counter.
func instrument[In, Out any](s *Server, tool string, h func(ctx context.Context, in In) (Out, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		out, err := h(ctx, in)
		elapsed := time.Since(start)

		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.ToolCalls.WithLabelValues(tool, status).Inc()
		s.metrics.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
		if s.toolCalls != nil {
			s.toolCalls.Add(ctx, 1,
				metric.WithAttributes(
					attribute.String("tool", tool),
					attribute.String("status", status),
				))
		}

		if err != nil {
			s.logger.Info("tool call failed",
				"tool", tool, "duration", elapsed, "error", err)
			var zero Out
			return nil, zero, sanitizeError(err)
		}
		s.logger.Debug("tool call", "tool", tool, "duration", elapsed)
		return nil, out, nil
	}
}

// sanitizeError maps internal errors to the messages the agent sees.
// Denials already collapsed to ErrNotFound keep that shape; upstream
// errors lose everything but the status code.
func sanitizeError(err error) error {
	var apiErr *grafana.APIError
	switch {
	case errors.Is(err, access.ErrNotFound),
		errors.Is(err, access.ErrPermissionDenied),
		errors.Is(err, access.ErrInvalidArgument):
		return err
	case errors.As(err, &apiErr):
		return fmt.Errorf("upstream error from cluster %q (status %d)", apiErr.Cluster, apiErr.StatusCode)
	default:
		return errors.New("internal error")
	}
}
