package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/domain/audit"
	"github.com/dash-gate/dashgate/internal/domain/resource"
	"github.com/dash-gate/dashgate/internal/port/outbound"
)

// memoryStore is an in-memory ResourceStore for service tests. Folder
// paths are declared up front; resources are keyed by cluster+kind+uid.
type memoryStore struct {
	resources   map[string]*resource.Resource
	folderPaths map[string]string

	deletes int
	updates int
	creates int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		resources:   make(map[string]*resource.Resource),
		folderPaths: make(map[string]string),
	}
}

func (m *memoryStore) key(cluster string, kind resource.Kind, uid string) string {
	return cluster + "|" + string(kind) + "|" + uid
}

func (m *memoryStore) put(res *resource.Resource) {
	m.resources[m.key(res.Cluster, res.Kind, res.UID)] = res
}

func (m *memoryStore) GetResource(_ context.Context, cluster string, kind resource.Kind, uid string) (*resource.Resource, error) {
	if res, ok := m.resources[m.key(cluster, kind, uid)]; ok {
		cp := *res
		return &cp, nil
	}
	return nil, access.ErrNotFound
}

func (m *memoryStore) ListResources(_ context.Context, cluster string, kind resource.Kind, _ outbound.ListFilters) ([]resource.Resource, error) {
	var out []resource.Resource
	for _, res := range m.resources {
		if res.Cluster == cluster && res.Kind == kind {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (m *memoryStore) CreateResource(_ context.Context, cluster string, kind resource.Kind, spec resource.Spec, folderUID string) (*resource.Resource, error) {
	m.creates++
	uid, _ := spec["uid"].(string)
	title, _ := spec["title"].(string)
	res := &resource.Resource{
		UID:        uid,
		Kind:       kind,
		Title:      title,
		Cluster:    cluster,
		Tags:       specTagSet(spec),
		FolderUID:  folderUID,
		FolderPath: m.folderPaths[cluster+"|"+folderUID],
		Version:    1,
		Spec:       spec,
	}
	m.put(res)
	return res, nil
}

func (m *memoryStore) UpdateResource(_ context.Context, cluster string, kind resource.Kind, uid string, spec resource.Spec, folderUID string) (*resource.Resource, error) {
	m.updates++
	title, _ := spec["title"].(string)
	existing := m.resources[m.key(cluster, kind, uid)]
	version := 1
	if existing != nil {
		version = existing.Version + 1
	}
	res := &resource.Resource{
		UID:        uid,
		Kind:       kind,
		Title:      title,
		Cluster:    cluster,
		Tags:       specTagSet(spec),
		FolderUID:  folderUID,
		FolderPath: m.folderPaths[cluster+"|"+folderUID],
		Version:    version,
		Spec:       spec,
	}
	m.put(res)
	return res, nil
}

func (m *memoryStore) DeleteResource(_ context.Context, cluster string, kind resource.Kind, uid string) error {
	m.deletes++
	key := m.key(cluster, kind, uid)
	if _, ok := m.resources[key]; !ok {
		return access.ErrNotFound
	}
	delete(m.resources, key)
	return nil
}

func (m *memoryStore) ResolveFolderPath(_ context.Context, cluster, folderUID string) (string, error) {
	if folderUID == "" {
		return "/", nil
	}
	if path, ok := m.folderPaths[cluster+"|"+folderUID]; ok {
		return path, nil
	}
	return "", access.ErrNotFound
}

// fakeDiag records diagnostics calls.
type fakeDiag struct {
	snapshots  int
	renders    int
	lastRender outbound.RenderRequest
}

func (f *fakeDiag) CheckHealth(context.Context, string) (*outbound.HealthStatus, error) {
	return &outbound.HealthStatus{Database: "ok"}, nil
}

func (f *fakeDiag) ListDatasources(context.Context, string) ([]outbound.Datasource, error) {
	return nil, nil
}

func (f *fakeDiag) CreateSnapshot(context.Context, string, resource.Spec, string, time.Duration) (*outbound.Snapshot, error) {
	f.snapshots++
	return &outbound.Snapshot{Key: "snapkey", URL: "http://g/dashboard/snapshot/snapkey"}, nil
}

func (f *fakeDiag) RenderPanel(_ context.Context, _ string, req outbound.RenderRequest) ([]byte, error) {
	f.renders++
	f.lastRender = req
	return []byte("png"), nil
}

// recordingTrail captures audit records in memory.
type recordingTrail struct {
	records []audit.Record
}

func (r *recordingTrail) Append(_ context.Context, rec audit.Record) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingTrail) Close() error { return nil }

func (r *recordingTrail) last(t *testing.T) audit.Record {
	t.Helper()
	if len(r.records) == 0 {
		t.Fatal("no audit records")
	}
	return r.records[len(r.records)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store *memoryStore, boundary string) (*DashboardService, *fakeDiag, *recordingTrail) {
	gate := access.NewGate(access.NewPolicy(nil, []string{"MCP"}), access.NewBoundary(boundary), nil)
	diag := &fakeDiag{}
	trail := &recordingTrail{}
	return NewDashboardService(store, diag, gate, trail, discardLogger()), diag, trail
}

func managedDashboard(cluster, uid, folderUID, folderPath string) *resource.Resource {
	return &resource.Resource{
		UID:        uid,
		Kind:       resource.KindDashboard,
		Title:      "Managed " + uid,
		Cluster:    cluster,
		Tags:       resource.NewTagSet("MCP"),
		FolderUID:  folderUID,
		FolderPath: folderPath,
		Version:    3,
		Spec: resource.Spec{
			"uid": uid, "title": "Managed " + uid,
			"tags": []string{"MCP"}, "version": 3,
		},
	}
}

func TestCreate_StampsProtectedTags(t *testing.T) {
	store := newMemoryStore()
	svc, _, trail := newTestService(store, "/")

	res, err := svc.Create(context.Background(), "dev", "Fresh", "", resource.Spec{"tags": []string{"team"}})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if !res.Tags.Has("MCP") || !res.Tags.Has("team") {
		t.Errorf("Tags = %v, want MCP and team", res.Tags.Slice())
	}
	if len(res.UID) == 0 {
		t.Error("no UID generated")
	}
	if rec := trail.last(t); rec.Decision != audit.DecisionAllow || rec.Tool != "create_dashboard" {
		t.Errorf("audit record = %+v", rec)
	}
	if rec := trail.last(t); rec.Fingerprint == "" {
		t.Error("create audit record has no fingerprint")
	}
}

func TestCreate_RequiresTitle(t *testing.T) {
	svc, _, _ := newTestService(newMemoryStore(), "/")
	_, err := svc.Create(context.Background(), "dev", "", "", nil)
	if !errors.Is(err, access.ErrInvalidArgument) {
		t.Fatalf("Create() = %v, want ErrInvalidArgument", err)
	}
}

func TestCreate_ExplicitUIDCollision(t *testing.T) {
	store := newMemoryStore()
	store.put(managedDashboard("dev", "taken", "", "/"))
	svc, _, _ := newTestService(store, "/")

	_, err := svc.Create(context.Background(), "dev", "t", "", resource.Spec{"uid": "taken"})
	if !errors.Is(err, access.ErrInvalidArgument) {
		t.Fatalf("Create() = %v, want ErrInvalidArgument", err)
	}
}

func TestCreate_OutsideBoundaryIsNotFound(t *testing.T) {
	store := newMemoryStore()
	store.folderPaths["dev|elsewhere"] = "/elsewhere"
	svc, _, trail := newTestService(store, "/mcp")

	_, err := svc.Create(context.Background(), "dev", "t", "elsewhere", nil)
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("Create() = %v, want ErrNotFound", err)
	}
	if rec := trail.last(t); rec.Decision != audit.DecisionDeny || rec.Reason != "not found" {
		t.Errorf("audit record = %+v", rec)
	}
}

func TestGet_ProtectedDashboardIsStealthHidden(t *testing.T) {
	store := newMemoryStore()
	protected := managedDashboard("dev", "secret", "", "/")
	protected.Tags = resource.NewTagSet("ops-only")
	store.put(protected)
	svc, _, _ := newTestService(store, "/")

	// Write-protected but readable: readTags is empty.
	if _, err := svc.Get(context.Background(), "dev", "secret"); err != nil {
		t.Fatalf("Get() = %v, want readable under empty read tags", err)
	}

	// With read tags configured, the same dashboard vanishes.
	gate := access.NewGate(access.NewPolicy([]string{"MCP"}, []string{"MCP"}), access.NewBoundary("/"), nil)
	restricted := NewDashboardService(store, &fakeDiag{}, gate, &recordingTrail{}, discardLogger())
	if _, err := restricted.Get(context.Background(), "dev", "secret"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("Get() = %v, want ErrNotFound", err)
	}
}

func TestUpdate_ProtectedDashboardIsStealthHidden(t *testing.T) {
	store := newMemoryStore()
	protected := managedDashboard("dev", "locked", "", "/")
	protected.Tags = resource.NewTagSet("ops-only")
	store.put(protected)
	svc, _, _ := newTestService(store, "/")

	_, err := svc.Update(context.Background(), "dev", "locked", resource.Spec{"title": "hijack"})
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("Update() = %v, want ErrNotFound", err)
	}
	if store.updates != 0 {
		t.Errorf("store saw %d updates, want 0", store.updates)
	}
}

func TestUpdate_CarriesVersionAndTags(t *testing.T) {
	store := newMemoryStore()
	store.put(managedDashboard("dev", "abc", "", "/"))
	svc, _, _ := newTestService(store, "/")

	res, err := svc.Update(context.Background(), "dev", "abc", resource.Spec{"title": "Renamed"})
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if res.Title != "Renamed" {
		t.Errorf("Title = %q", res.Title)
	}
	if !res.Tags.Has("MCP") {
		t.Errorf("Tags = %v, protection tag dropped", res.Tags.Slice())
	}
	if got := res.Spec["version"]; got != 3 {
		t.Errorf("submitted version = %v, want 3 (current)", got)
	}
}

func TestDelete_ProtectedDashboardIsStealthHidden(t *testing.T) {
	store := newMemoryStore()
	protected := managedDashboard("dev", "keep", "", "/")
	protected.Tags = resource.NewTagSet("other")
	store.put(protected)
	svc, _, trail := newTestService(store, "/")

	err := svc.Delete(context.Background(), "dev", "keep")
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("Delete() = %v, want ErrNotFound", err)
	}
	if store.deletes != 0 {
		t.Errorf("store saw %d deletes, want 0", store.deletes)
	}
	if rec := trail.last(t); rec.Decision != audit.DecisionDeny {
		t.Errorf("audit record = %+v", rec)
	}
}

func TestDelete_Managed(t *testing.T) {
	store := newMemoryStore()
	store.put(managedDashboard("dev", "gone", "", "/"))
	svc, _, _ := newTestService(store, "/")

	if err := svc.Delete(context.Background(), "dev", "gone"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if store.deletes != 1 {
		t.Errorf("store saw %d deletes, want 1", store.deletes)
	}
}

func TestSearch_FiltersHiddenResults(t *testing.T) {
	store := newMemoryStore()
	store.put(managedDashboard("dev", "visible", "", "/"))
	hidden := managedDashboard("dev", "hidden", "", "/")
	hidden.Tags = resource.NewTagSet("other")
	store.put(hidden)

	gate := access.NewGate(access.NewPolicy([]string{"MCP"}, []string{"MCP"}), access.NewBoundary("/"), nil)
	svc := NewDashboardService(store, &fakeDiag{}, gate, &recordingTrail{}, discardLogger())

	got, err := svc.Search(context.Background(), SearchParams{Cluster: "dev"})
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if len(got) != 1 || got[0].UID != "visible" {
		t.Errorf("Search() = %d results, want only the visible one", len(got))
	}
}

func TestCopy_SameClusterCreatesUnderFreshUID(t *testing.T) {
	store := newMemoryStore()
	store.folderPaths["dev|ops"] = "/ops"
	store.put(managedDashboard("dev", "abc", "ops", "/ops"))
	svc, _, trail := newTestService(store, "/")

	result, err := svc.Copy(context.Background(), CopyParams{
		SourceCluster: "dev", SourceUID: "abc", Title: "Copy of abc",
	})
	if err != nil {
		t.Fatalf("Copy() = %v", err)
	}
	if result.Overwrote {
		t.Error("same-cluster copy reported an overwrite")
	}
	if result.Resource.UID == "abc" {
		t.Error("copy reused the source UID")
	}
	if store.creates != 1 {
		t.Errorf("store saw %d creates, want 1", store.creates)
	}
	if rec := trail.last(t); rec.Tool != "copy_dashboard" || rec.Fingerprint == "" {
		t.Errorf("audit record = %+v", rec)
	}
}

func TestCopy_ExplicitTargetOverwrites(t *testing.T) {
	store := newMemoryStore()
	store.folderPaths["dev|ops"] = "/ops"
	store.folderPaths["prod|ops"] = "/ops"
	store.put(managedDashboard("dev", "abc", "ops", "/ops"))
	store.put(managedDashboard("prod", "abc", "ops", "/ops"))
	svc, _, _ := newTestService(store, "/")

	result, err := svc.Copy(context.Background(), CopyParams{
		SourceCluster: "dev", SourceUID: "abc",
		TargetCluster: "prod", TargetUID: "abc", Title: "Promoted",
	})
	if err != nil {
		t.Fatalf("Copy() = %v", err)
	}
	if !result.Overwrote {
		t.Error("copy onto an existing UID did not report an overwrite")
	}
	if store.updates != 1 || store.creates != 0 {
		t.Errorf("store saw %d updates / %d creates, want 1/0", store.updates, store.creates)
	}
}

func TestCopy_UnmanagedDestinationFailsWithoutWrite(t *testing.T) {
	store := newMemoryStore()
	store.folderPaths["dev|ops"] = "/ops"
	store.put(managedDashboard("dev", "abc", "ops", "/ops"))
	foreign := managedDashboard("dev", "foreign", "ops", "/ops")
	foreign.Tags = resource.NewTagSet("other-team")
	store.put(foreign)
	svc, _, _ := newTestService(store, "/")

	_, err := svc.Copy(context.Background(), CopyParams{
		SourceCluster: "dev", SourceUID: "abc", TargetUID: "foreign", Title: "t",
	})
	if !errors.Is(err, access.ErrPermissionDenied) {
		t.Fatalf("Copy() = %v, want ErrPermissionDenied", err)
	}
	if store.updates != 0 && store.creates != 0 {
		t.Error("denied copy still wrote to the store")
	}
}

func TestSnapshot_ReadGated(t *testing.T) {
	store := newMemoryStore()
	store.put(managedDashboard("dev", "abc", "", "/"))
	svc, diag, _ := newTestService(store, "/")

	snap, err := svc.Snapshot(context.Background(), "dev", "abc", "", 0)
	if err != nil {
		t.Fatalf("Snapshot() = %v", err)
	}
	if snap.Key != "snapkey" || diag.snapshots != 1 {
		t.Errorf("snapshot = %+v, diag calls = %d", snap, diag.snapshots)
	}

	if _, err := svc.Snapshot(context.Background(), "dev", "ghost", "", 0); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("Snapshot(ghost) = %v, want ErrNotFound", err)
	}
	if diag.snapshots != 1 {
		t.Errorf("denied snapshot still reached diagnostics (%d calls)", diag.snapshots)
	}
}

func TestRenderPanel_ClampsDimensions(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		height     int
		wantWidth  int
		wantHeight int
	}{
		{"defaults when omitted", 0, 0, renderWidthDefault, renderHeightDefault},
		{"oversized clamped down", 999999, 5000, renderDimMax, renderDimMax},
		{"undersized clamped up", 1, 50, renderDimMin, renderDimMin},
		{"in range untouched", 800, 400, 800, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			store.put(managedDashboard("dev", "abc", "", "/"))
			svc, diag, _ := newTestService(store, "/")

			_, err := svc.RenderPanel(context.Background(), "dev", outbound.RenderRequest{
				DashboardUID: "abc",
				PanelID:      2,
				Width:        tt.width,
				Height:       tt.height,
			})
			if err != nil {
				t.Fatalf("RenderPanel() = %v", err)
			}
			if diag.lastRender.Width != tt.wantWidth || diag.lastRender.Height != tt.wantHeight {
				t.Errorf("rendered at %dx%d, want %dx%d",
					diag.lastRender.Width, diag.lastRender.Height, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestInspect_ReportsStructure(t *testing.T) {
	store := newMemoryStore()
	dash := managedDashboard("dev", "abc", "", "/")
	dash.Spec = resource.Spec{
		"uid": "abc", "title": "Managed abc",
		"tags": []string{"MCP"}, "version": 3,
		"refresh": "30s",
		"time":    map[string]any{"from": "now-6h", "to": "now"},
		"panels": []any{
			map[string]any{
				"id": float64(1), "title": "CPU", "type": "timeseries",
				"datasource": map[string]any{"type": "prometheus", "uid": "prom-1"},
			},
			map[string]any{
				"id": float64(2), "title": "Overview", "type": "row",
				"panels": []any{
					map[string]any{
						"id": float64(3), "title": "Errors", "type": "stat",
						"datasource": "Loki",
					},
				},
			},
		},
		"templating": map[string]any{
			"list": []any{
				map[string]any{
					"name": "env", "type": "query",
					"datasource": map[string]any{"uid": "prom-1"},
				},
			},
		},
	}
	store.put(dash)
	svc, _, trail := newTestService(store, "/")

	report, err := svc.Inspect(context.Background(), "dev", "abc")
	if err != nil {
		t.Fatalf("Inspect() = %v", err)
	}
	if report.TimeFrom != "now-6h" || report.TimeTo != "now" || report.Refresh != "30s" {
		t.Errorf("time settings = %q..%q refresh %q", report.TimeFrom, report.TimeTo, report.Refresh)
	}
	if len(report.Panels) != 3 {
		t.Fatalf("Panels = %+v, want 3 entries including the row child", report.Panels)
	}
	if report.Panels[0].Datasource != "prom-1" || report.Panels[2].Datasource != "Loki" {
		t.Errorf("panel datasources = %q / %q", report.Panels[0].Datasource, report.Panels[2].Datasource)
	}
	if report.Panels[2].ID != 3 || report.Panels[2].Type != "stat" {
		t.Errorf("row child panel = %+v", report.Panels[2])
	}
	if len(report.Variables) != 1 || report.Variables[0].Name != "env" {
		t.Errorf("Variables = %+v", report.Variables)
	}
	wantDS := []string{"Loki", "prom-1"}
	if len(report.DatasourceUIDs) != len(wantDS) {
		t.Fatalf("DatasourceUIDs = %v, want %v", report.DatasourceUIDs, wantDS)
	}
	for i, ds := range wantDS {
		if report.DatasourceUIDs[i] != ds {
			t.Errorf("DatasourceUIDs[%d] = %q, want %q", i, report.DatasourceUIDs[i], ds)
		}
	}
	if rec := trail.last(t); rec.Tool != "inspect_dashboard" || rec.Decision != audit.DecisionAllow {
		t.Errorf("audit record = %+v", rec)
	}
}

func TestInspect_ProtectedDashboardIsStealthHidden(t *testing.T) {
	store := newMemoryStore()
	unmanaged := managedDashboard("dev", "raw", "", "/")
	unmanaged.Tags = resource.NewTagSet("team-only")
	store.put(unmanaged)
	svc, _, _ := newTestService(store, "/")

	if _, err := svc.Inspect(context.Background(), "dev", "raw"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("Inspect(protected) = %v, want ErrNotFound", err)
	}
}

func TestCompare(t *testing.T) {
	store := newMemoryStore()
	left := managedDashboard("dev", "a", "", "/")
	right := managedDashboard("dev", "b", "", "/")
	right.Spec = resource.Spec{
		"uid": "b", "title": "Managed a",
		"tags": []string{"MCP"}, "version": 3,
		"panels": []any{"extra"},
	}
	store.put(left)
	store.put(right)
	svc, _, _ := newTestService(store, "/")

	got, err := svc.Compare(context.Background(), "dev", "a", "dev", "b")
	if err != nil {
		t.Fatalf("Compare() = %v", err)
	}
	if got.Identical {
		t.Error("differing specs reported identical")
	}
	want := map[string]bool{"uid": true, "panels": true}
	for _, field := range got.ChangedFields {
		if !want[field] {
			t.Errorf("unexpected changed field %q", field)
		}
		delete(want, field)
	}
	for field := range want {
		t.Errorf("missing changed field %q", field)
	}
}

func TestSearch_ClampsLimits(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{"default", 0, searchLimitDefault},
		{"negative", -5, searchLimitDefault},
		{"capped", 99999, searchLimitMax},
		{"passthrough", 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &limitCapturingStore{memoryStore: newMemoryStore()}
			gate := access.NewGate(access.NewPolicy(nil, []string{"MCP"}), access.NewBoundary("/"), nil)
			svc := NewDashboardService(store, &fakeDiag{}, gate, &recordingTrail{}, discardLogger())

			if _, err := svc.Search(context.Background(), SearchParams{Cluster: "dev", Limit: tt.limit}); err != nil {
				t.Fatalf("Search() = %v", err)
			}
			if store.gotLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", store.gotLimit, tt.wantLimit)
			}
			if store.gotPage != 1 {
				t.Errorf("page = %d, want 1", store.gotPage)
			}
		})
	}
}

type limitCapturingStore struct {
	*memoryStore
	gotLimit int
	gotPage  int
}

func (s *limitCapturingStore) ListResources(ctx context.Context, cluster string, kind resource.Kind, filters outbound.ListFilters) ([]resource.Resource, error) {
	s.gotLimit = filters.Limit
	s.gotPage = filters.Page
	return s.memoryStore.ListResources(ctx, cluster, kind, filters)
}
