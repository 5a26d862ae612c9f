package mcptool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dash-gate/dashgate/internal/adapter/outbound/grafana"
	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/domain/audit"
	"github.com/dash-gate/dashgate/internal/port/outbound"
	"github.com/dash-gate/dashgate/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestSanitizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"stealth not found", access.ErrNotFound, "resource not found"},
		{"wrapped not found", errors.Join(errors.New("ctx"), access.ErrNotFound), "resource not found"},
		{"permission denied", access.ErrPermissionDenied, "permission denied"},
		{"invalid argument", access.ErrInvalidArgument, "invalid argument"},
		{
			"upstream error loses body",
			&grafana.APIError{Cluster: "prod", StatusCode: 502, Message: "secret internals"},
			`upstream error from cluster "prod" (status 502)`,
		},
		{"unknown error hidden", errors.New("dial tcp 10.0.0.5: connection refused"), "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeError(tt.err)
			if !strings.Contains(got.Error(), tt.want) {
				t.Errorf("sanitizeError() = %q, want it to contain %q", got, tt.want)
			}
			if tt.name == "upstream error loses body" && strings.Contains(got.Error(), "secret") {
				t.Error("upstream body leaked through sanitizeError")
			}
		})
	}
}

func TestInstrument_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := &Server{metrics: NewMetrics(reg), logger: discardLogger()}

	okHandler := instrument(s, "read_dashboard", func(context.Context, struct{}) (string, error) {
		return "ok", nil
	})
	failHandler := instrument(s, "read_dashboard", func(context.Context, struct{}) (string, error) {
		return "", access.ErrNotFound
	})

	if _, out, err := okHandler(context.Background(), nil, struct{}{}); err != nil || out != "ok" {
		t.Fatalf("handler = %q, %v", out, err)
	}
	if _, _, err := failHandler(context.Background(), nil, struct{}{}); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("failing handler = %v, want ErrNotFound", err)
	}

	okCount := counterValue(t, s.metrics.ToolCalls.WithLabelValues("read_dashboard", "ok"))
	errCount := counterValue(t, s.metrics.ToolCalls.WithLabelValues("read_dashboard", "error"))
	if okCount != 1 || errCount != 1 {
		t.Errorf("tool_calls_total ok=%v error=%v, want 1/1", okCount, errCount)
	}
}

func TestInstrument_SanitizesHandlerErrors(t *testing.T) {
	s := &Server{metrics: NewMetrics(prometheus.NewRegistry()), logger: discardLogger()}
	h := instrument(s, "read_dashboard", func(context.Context, struct{}) (string, error) {
		return "", errors.New("pq: password authentication failed")
	})
	_, _, err := h(context.Background(), nil, struct{}{})
	if err == nil || err.Error() != "internal error" {
		t.Fatalf("instrumented error = %v, want sanitized internal error", err)
	}
}

func TestHealthOutput_FailedProbeReportsUnhealthy(t *testing.T) {
	out := healthOutput("prod", nil, errors.New("dial tcp 10.0.0.5:3000: connection refused"))
	if out.Status != "unhealthy" || out.Cluster != "prod" {
		t.Errorf("healthOutput = %+v, want unhealthy report for prod", out)
	}
	if out.Error == "" {
		t.Error("unhealthy report carries no error detail")
	}
	if strings.Contains(out.Error, "10.0.0.5") {
		t.Errorf("error detail leaked internals: %q", out.Error)
	}

	apiOut := healthOutput("prod", nil, &grafana.APIError{Cluster: "prod", StatusCode: 503, Message: "db down"})
	if apiOut.Status != "unhealthy" || !strings.Contains(apiOut.Error, "503") {
		t.Errorf("healthOutput on APIError = %+v, want unhealthy with status code", apiOut)
	}
}

func TestHealthOutput_HealthyProbe(t *testing.T) {
	out := healthOutput("dev", &outbound.HealthStatus{Version: "11.0.0", Database: "ok", DatasourceCount: 4}, nil)
	if out.Status != "healthy" || out.Database != "ok" || out.DatasourceCount != 4 {
		t.Errorf("healthOutput = %+v, want healthy report", out)
	}
	if out.Error != "" {
		t.Errorf("healthy report carries error %q", out.Error)
	}
}

func TestObserveTrail_CountsDecisions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	trail := m.ObserveTrail(audit.NopStore{})

	recs := []audit.Record{
		{Operation: "read", Decision: audit.DecisionAllow},
		{Operation: "read", Decision: audit.DecisionDeny},
		{Operation: "read", Decision: audit.DecisionDeny},
		{Operation: "update", Decision: audit.DecisionAllow},
	}
	for _, rec := range recs {
		if err := trail.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if got := counterValue(t, m.AuthzDecisions.WithLabelValues("read", "deny")); got != 2 {
		t.Errorf("authz_decisions_total{read,deny} = %v, want 2", got)
	}
	if got := counterValue(t, m.AuthzDecisions.WithLabelValues("update", "allow")); got != 1 {
		t.Errorf("authz_decisions_total{update,allow} = %v, want 1", got)
	}
	if err := trail.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewServer_RegistersWithoutPanic(t *testing.T) {
	gate := access.NewGate(access.NewPolicy(nil, []string{"MCP"}), access.NewBoundary("/"), nil)
	logger := discardLogger()
	dashboards := service.NewDashboardService(nil, nil, gate, nil, logger)
	folders := service.NewFolderService(nil, gate, nil, logger)
	clusters := service.NewClusterService([]service.ClusterInfo{{Name: "dev"}}, nil, logger)

	s := NewServer("test", dashboards, folders, clusters, NewMetrics(prometheus.NewRegistry()), logger)
	if s == nil || s.mcpServer == nil {
		t.Fatal("NewServer returned an incomplete server")
	}
}
