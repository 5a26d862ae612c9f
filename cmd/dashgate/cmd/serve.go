package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dash-gate/dashgate/internal/adapter/inbound/mcptool"
	auditstore "github.com/dash-gate/dashgate/internal/adapter/outbound/audit"
	celguard "github.com/dash-gate/dashgate/internal/adapter/outbound/cel"
	"github.com/dash-gate/dashgate/internal/adapter/outbound/grafana"
	"github.com/dash-gate/dashgate/internal/config"
	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/domain/audit"
	"github.com/dash-gate/dashgate/internal/service"
	"github.com/dash-gate/dashgate/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP tools over stdio",
	Long: `Start the MCP server on stdin/stdout. All logs go to stderr; stdout
carries only the protocol stream.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if file := config.FileUsed(); file != "" {
		logger.Info("loaded config", "file", file)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// Access control core. Policy invariants were already checked during
	// config validation; Validate here guards against future drift
	// between config checks and policy construction.
	policy := access.NewPolicy(cfg.Access.ReadTags, cfg.Access.WriteTags)
	if err := policy.Validate(); err != nil {
		return err
	}
	boundary := access.NewBoundary(cfg.Access.Folder)

	var guard access.Guard
	if cfg.Access.Guard != "" {
		g, err := celguard.NewGuard(cfg.Access.Guard)
		if err != nil {
			return fmt.Errorf("access.guard: %w", err)
		}
		guard = g
	}
	gate := access.NewGate(policy, boundary, guard)
	logger.Info("access gate configured",
		"read_tags", cfg.Access.ReadTags,
		"write_tags", cfg.Access.WriteTags,
		"folder", boundary.Root(),
		"guard", cfg.Access.Guard != "")

	registry := prometheus.NewRegistry()
	metrics := mcptool.NewMetrics(registry)
	if cfg.Server.MetricsAddr != "" {
		startMetricsListener(ctx, cfg.Server.MetricsAddr, registry, logger)
	}

	// Audit trail. The metrics wrapper counts decisions even when no
	// persistent store is configured.
	var trail audit.Store = audit.NopStore{}
	if cfg.Audit.Path != "" {
		sqliteTrail, err := auditstore.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer func() {
			if err := sqliteTrail.Close(); err != nil {
				logger.Warn("audit store close failed", "error", err)
			}
		}()
		trail = sqliteTrail
		logger.Info("audit trail enabled", "path", cfg.Audit.Path)
	}
	trail = metrics.ObserveTrail(trail)

	// Grafana client over all configured clusters.
	clusters := make([]grafana.Cluster, 0, len(cfg.Clusters))
	clusterInfos := make([]service.ClusterInfo, 0, len(cfg.Clusters))
	for _, cl := range cfg.Clusters {
		clusters = append(clusters, grafana.Cluster{Name: cl.Name, URL: cl.URL, Token: cl.Token})
		clusterInfos = append(clusterInfos, service.ClusterInfo{Name: cl.Name, URL: cl.URL})
	}
	client := grafana.NewClient(clusters,
		grafana.WithTimeout(cfg.HTTPTimeout()),
		grafana.WithRequestObserver(func(cluster string, statusCode int) {
			metrics.UpstreamRequests.WithLabelValues(cluster, strconv.Itoa(statusCode)).Inc()
		}))

	dashboards := service.NewDashboardService(client, client, gate, trail, logger)
	folders := service.NewFolderService(client, gate, trail, logger)
	clusterSvc := service.NewClusterService(clusterInfos, client, logger)

	server := mcptool.NewServer(Version, dashboards, folders, clusterSvc, metrics, logger)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// startMetricsListener serves Prometheus metrics on a side listener. The
// MCP transport owns stdio, so this is the only network surface.
func startMetricsListener(ctx context.Context, addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
