// Package service contains application services. They sit between the MCP
// tool surface and the outbound ports, run every operation through the
// access gate, and record the decision in the audit trail.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/domain/audit"
	"github.com/dash-gate/dashgate/internal/domain/resource"
	"github.com/dash-gate/dashgate/internal/domain/transfer"
	"github.com/dash-gate/dashgate/internal/port/outbound"
)

const (
	// Search limit clamps.
	searchLimitDefault = 1000
	searchLimitMax     = 5000

	// Render dimension defaults and clamps, in pixels.
	renderWidthDefault  = 1000
	renderHeightDefault = 500
	renderDimMin        = 100
	renderDimMax        = 3000
)

// SearchParams narrows a dashboard search.
type SearchParams struct {
	Cluster   string
	Query     string
	Tags      []string
	FolderUID string
	Limit     int
	Page      int
}

// CopyParams parameterizes a dashboard copy.
type CopyParams struct {
	SourceCluster string
	SourceUID     string
	TargetCluster string
	TargetUID     string
	FolderUID     string
	Title         string
}

// CopyResult reports what a copy did.
type CopyResult struct {
	Resource  *resource.Resource
	Overwrote bool
}

// CompareResult reports how two dashboards differ, by payload fingerprint
// and by top-level spec field.
type CompareResult struct {
	LeftFingerprint  string
	RightFingerprint string
	Identical        bool
	ChangedFields    []string
}

// DashboardService implements the dashboard operations behind the tool
// surface.
type DashboardService struct {
	store    outbound.ResourceStore
	diag     outbound.Diagnostics
	gate     *access.Gate
	resolver *transfer.Resolver
	trail    audit.Store
	logger   *slog.Logger
}

// NewDashboardService builds a DashboardService.
func NewDashboardService(store outbound.ResourceStore, diag outbound.Diagnostics, gate *access.Gate, trail audit.Store, logger *slog.Logger) *DashboardService {
	return &DashboardService{
		store:    store,
		diag:     diag,
		gate:     gate,
		resolver: transfer.NewResolver(store, gate),
		trail:    trail,
		logger:   logger,
	}
}

// record writes one audit entry; audit failures are logged, never
// propagated to the caller.
func (s *DashboardService) record(ctx context.Context, rec audit.Record) {
	rec.Time = time.Now()
	if err := s.trail.Append(ctx, rec); err != nil {
		s.logger.Warn("audit append failed", "tool", rec.Tool, "error", err)
	}
}

func (s *DashboardService) audited(ctx context.Context, tool, op, cluster, uid, fingerprint string, err error) error {
	rec := audit.Record{
		Tool:        tool,
		Operation:   op,
		Cluster:     cluster,
		Kind:        string(resource.KindDashboard),
		UID:         uid,
		Decision:    audit.DecisionAllow,
		Fingerprint: fingerprint,
	}
	if err != nil {
		rec.Decision = audit.DecisionDeny
		rec.Reason = denialReason(err)
	}
	s.record(ctx, rec)
	return err
}

// denialReason classifies an error for the audit trail.
func denialReason(err error) string {
	switch {
	case errors.Is(err, access.ErrNotFound):
		return "not found"
	case errors.Is(err, access.ErrPermissionDenied):
		return "permission denied"
	case errors.Is(err, access.ErrInvalidArgument):
		return "invalid argument"
	default:
		return "upstream error"
	}
}

// fetchAuthorized gets one dashboard and runs it through the read gate.
func (s *DashboardService) fetchAuthorized(ctx context.Context, cluster, uid string) (*resource.Resource, error) {
	res, err := s.store.GetResource(ctx, cluster, resource.KindDashboard, uid)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeRead(ctx, *res); err != nil {
		return nil, err
	}
	return res, nil
}

// Get returns one dashboard, or ErrNotFound for anything the caller may
// not see.
func (s *DashboardService) Get(ctx context.Context, cluster, uid string) (*resource.Resource, error) {
	res, err := s.fetchAuthorized(ctx, cluster, uid)
	return res, s.audited(ctx, "read_dashboard", "read", cluster, uid, "", err)
}

// Search lists dashboards matching the given filters. Results are
// filtered through the read gate; hidden resources are dropped silently.
func (s *DashboardService) Search(ctx context.Context, params SearchParams) ([]resource.Resource, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = searchLimitDefault
	}
	if limit > searchLimitMax {
		limit = searchLimitMax
	}
	page := params.Page
	if page < 1 {
		page = 1
	}

	filters := outbound.ListFilters{
		Query: params.Query,
		Tags:  params.Tags,
		Limit: limit,
		Page:  page,
	}
	if params.FolderUID != "" {
		filters.FolderUIDs = []string{params.FolderUID}
	}

	all, err := s.store.ListResources(ctx, params.Cluster, resource.KindDashboard, filters)
	if err != nil {
		return nil, s.audited(ctx, "search_dashboards", "list", params.Cluster, "", "", err)
	}
	visible := s.gate.FilterList(ctx, all)
	s.logger.Debug("dashboard search",
		"cluster", params.Cluster, "matched", len(all), "visible", len(visible))
	return visible, s.audited(ctx, "search_dashboards", "list", params.Cluster, "", "", nil)
}

// Create creates a new dashboard. The payload gets the protected tag set
// stamped on, so the result remains visible and writable under the
// configured policy.
func (s *DashboardService) Create(ctx context.Context, cluster, title, folderUID string, spec resource.Spec) (*resource.Resource, error) {
	res, err := s.create(ctx, cluster, title, folderUID, spec)
	uid := ""
	fingerprint := ""
	if res != nil {
		uid = res.UID
		fingerprint = resource.Fingerprint(res.Spec)
	}
	return res, s.audited(ctx, "create_dashboard", "create", cluster, uid, fingerprint, err)
}

func (s *DashboardService) create(ctx context.Context, cluster, title, folderUID string, spec resource.Spec) (*resource.Resource, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", access.ErrInvalidArgument)
	}
	if spec == nil {
		spec = resource.Spec{"panels": []any{}}
	}

	sp := spec.Clone()
	delete(sp, "id")
	delete(sp, "url")
	delete(sp, "version")
	sp["title"] = title

	uid, _ := sp["uid"].(string)
	if uid == "" {
		uid = transfer.NewUID()
	} else {
		// An explicit UID must not clobber an existing dashboard; creates
		// go through the copy tool when overwriting is intended.
		if _, err := s.store.GetResource(ctx, cluster, resource.KindDashboard, uid); err == nil {
			return nil, fmt.Errorf("%w: dashboard %q already exists on cluster %q",
				access.ErrInvalidArgument, uid, cluster)
		} else if !errors.Is(err, access.ErrNotFound) {
			return nil, err
		}
	}
	sp["uid"] = uid

	tags := s.gate.Policy().ProtectedTags(specTagSet(sp))
	sp["tags"] = tags.Slice()

	folderPath, err := s.store.ResolveFolderPath(ctx, cluster, folderUID)
	if err != nil {
		return nil, access.ErrNotFound
	}
	if err := s.gate.AuthorizeCreate(folderPath); err != nil {
		return nil, err
	}
	return s.store.CreateResource(ctx, cluster, resource.KindDashboard, sp, folderUID)
}

// Update overwrites an existing dashboard. The stealth rule applies: a
// dashboard the policy protects looks absent.
func (s *DashboardService) Update(ctx context.Context, cluster, uid string, spec resource.Spec) (*resource.Resource, error) {
	res, err := s.update(ctx, cluster, uid, spec)
	fingerprint := ""
	if res != nil {
		fingerprint = resource.Fingerprint(res.Spec)
	}
	return res, s.audited(ctx, "update_dashboard", "update", cluster, uid, fingerprint, err)
}

func (s *DashboardService) update(ctx context.Context, cluster, uid string, spec resource.Spec) (*resource.Resource, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: dashboard payload is required", access.ErrInvalidArgument)
	}
	existing, err := s.store.GetResource(ctx, cluster, resource.KindDashboard, uid)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeWrite(ctx, *existing); err != nil {
		return nil, err
	}

	sp := spec.Clone()
	delete(sp, "id")
	delete(sp, "url")
	sp["uid"] = uid
	sp["version"] = existing.Version
	if _, ok := sp["title"]; !ok {
		sp["title"] = existing.Title
	}
	tags := s.gate.Policy().ProtectedTags(specTagSet(sp))
	sp["tags"] = tags.Slice()

	return s.store.UpdateResource(ctx, cluster, resource.KindDashboard, uid, sp, existing.FolderUID)
}

// Delete removes a dashboard after the write gate allows it.
func (s *DashboardService) Delete(ctx context.Context, cluster, uid string) error {
	err := s.delete(ctx, cluster, uid)
	return s.audited(ctx, "delete_dashboard", "delete", cluster, uid, "", err)
}

func (s *DashboardService) delete(ctx context.Context, cluster, uid string) error {
	existing, err := s.store.GetResource(ctx, cluster, resource.KindDashboard, uid)
	if err != nil {
		return err
	}
	if err := s.gate.AuthorizeWrite(ctx, *existing); err != nil {
		return err
	}
	return s.store.DeleteResource(ctx, cluster, resource.KindDashboard, uid)
}

// Copy clones a dashboard within or across clusters per the resolution
// rules in the transfer package.
func (s *DashboardService) Copy(ctx context.Context, params CopyParams) (*CopyResult, error) {
	result, err := s.copy(ctx, params)
	uid := params.TargetUID
	fingerprint := ""
	if result != nil && result.Resource != nil {
		uid = result.Resource.UID
		fingerprint = resource.Fingerprint(result.Resource.Spec)
	}
	op := "create"
	if result != nil && result.Overwrote {
		op = "update"
	}
	return result, s.audited(ctx, "copy_dashboard", op, params.TargetCluster, uid, fingerprint, err)
}

func (s *DashboardService) copy(ctx context.Context, params CopyParams) (*CopyResult, error) {
	req := transfer.Request{
		SourceCluster: params.SourceCluster,
		SourceUID:     params.SourceUID,
		TargetCluster: params.TargetCluster,
		TargetUID:     params.TargetUID,
		FolderUID:     params.FolderUID,
		Title:         params.Title,
	}
	req.Normalize()

	source, err := s.fetchAuthorized(ctx, params.SourceCluster, params.SourceUID)
	if err != nil {
		return nil, err
	}
	plan, err := s.resolver.Resolve(ctx, req, source)
	if err != nil {
		return nil, err
	}

	var written *resource.Resource
	switch plan.Mode {
	case transfer.ModeOverwrite:
		written, err = s.store.UpdateResource(ctx, plan.TargetCluster, resource.KindDashboard, plan.TargetUID, plan.Spec, plan.FolderUID)
	default:
		written, err = s.store.CreateResource(ctx, plan.TargetCluster, resource.KindDashboard, plan.Spec, plan.FolderUID)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("dashboard copied",
		"source_cluster", params.SourceCluster, "source_uid", params.SourceUID,
		"target_cluster", plan.TargetCluster, "target_uid", written.UID,
		"mode", plan.Mode.String())
	return &CopyResult{Resource: written, Overwrote: plan.Mode == transfer.ModeOverwrite}, nil
}

// Snapshot creates a Grafana snapshot of a readable dashboard.
func (s *DashboardService) Snapshot(ctx context.Context, cluster, uid, name string, expires time.Duration) (*outbound.Snapshot, error) {
	res, err := s.fetchAuthorized(ctx, cluster, uid)
	if err != nil {
		return nil, s.audited(ctx, "snapshot_dashboard", "read", cluster, uid, "", err)
	}
	if name == "" {
		name = res.Title
	}
	snap, err := s.diag.CreateSnapshot(ctx, cluster, res.Spec, name, expires)
	return snap, s.audited(ctx, "snapshot_dashboard", "read", cluster, uid, "", err)
}

// RenderPanel renders one panel of a readable dashboard to an image.
// Dimensions are clamped to [100, 3000] pixels; 1000x500 when omitted.
func (s *DashboardService) RenderPanel(ctx context.Context, cluster string, req outbound.RenderRequest) ([]byte, error) {
	if _, err := s.fetchAuthorized(ctx, cluster, req.DashboardUID); err != nil {
		return nil, s.audited(ctx, "render_panel", "read", cluster, req.DashboardUID, "", err)
	}
	req.Width = clampDimension(req.Width, renderWidthDefault)
	req.Height = clampDimension(req.Height, renderHeightDefault)
	img, err := s.diag.RenderPanel(ctx, cluster, req)
	return img, s.audited(ctx, "render_panel", "read", cluster, req.DashboardUID, "", err)
}

func clampDimension(v, fallback int) int {
	if v <= 0 {
		v = fallback
	}
	if v < renderDimMin {
		return renderDimMin
	}
	if v > renderDimMax {
		return renderDimMax
	}
	return v
}

// Compare fingerprints two readable dashboards and reports the top-level
// fields where their payloads differ.
func (s *DashboardService) Compare(ctx context.Context, leftCluster, leftUID, rightCluster, rightUID string) (*CompareResult, error) {
	left, err := s.fetchAuthorized(ctx, leftCluster, leftUID)
	if err != nil {
		return nil, s.audited(ctx, "compare_dashboards", "read", leftCluster, leftUID, "", err)
	}
	right, err := s.fetchAuthorized(ctx, rightCluster, rightUID)
	if err != nil {
		return nil, s.audited(ctx, "compare_dashboards", "read", rightCluster, rightUID, "", err)
	}

	result := &CompareResult{
		LeftFingerprint:  resource.Fingerprint(left.Spec),
		RightFingerprint: resource.Fingerprint(right.Spec),
		ChangedFields:    changedFields(left.Spec, right.Spec),
	}
	result.Identical = result.LeftFingerprint == result.RightFingerprint
	return result, s.audited(ctx, "compare_dashboards", "read", rightCluster, rightUID, "", nil)
}

// PanelInfo summarizes one panel of a dashboard model.
type PanelInfo struct {
	ID         int
	Title      string
	Type       string
	Datasource string
}

// VariableInfo summarizes one template variable.
type VariableInfo struct {
	Name       string
	Type       string
	Datasource string
}

// InspectResult is the structural report of a dashboard: its panels,
// template variables, and the set of datasources they reference.
type InspectResult struct {
	Dashboard      *resource.Resource
	TimeFrom       string
	TimeTo         string
	Refresh        string
	Panels         []PanelInfo
	Variables      []VariableInfo
	DatasourceUIDs []string
}

// Inspect reports the structure of a readable dashboard without exposing
// anything the read gate would hide.
func (s *DashboardService) Inspect(ctx context.Context, cluster, uid string) (*InspectResult, error) {
	res, err := s.fetchAuthorized(ctx, cluster, uid)
	if err != nil {
		return nil, s.audited(ctx, "inspect_dashboard", "read", cluster, uid, "", err)
	}

	result := &InspectResult{
		Dashboard: res,
		Refresh:   specField(res.Spec, "refresh"),
	}
	if tr, ok := res.Spec["time"].(map[string]any); ok {
		result.TimeFrom = specField(tr, "from")
		result.TimeTo = specField(tr, "to")
	}

	seen := make(map[string]struct{})
	result.Panels = collectPanels(res.Spec["panels"], seen)
	result.Variables = collectVariables(res.Spec, seen)
	result.DatasourceUIDs = make([]string, 0, len(seen))
	for ds := range seen {
		result.DatasourceUIDs = append(result.DatasourceUIDs, ds)
	}
	sort.Strings(result.DatasourceUIDs)

	return result, s.audited(ctx, "inspect_dashboard", "read", cluster, uid, "", nil)
}

// collectPanels flattens the panel tree. Row panels nest their children
// under a "panels" key; those children are reported alongside the row.
func collectPanels(raw any, seen map[string]struct{}) []PanelInfo {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var panels []PanelInfo
	for _, p := range list {
		panel, ok := p.(map[string]any)
		if !ok {
			continue
		}
		info := PanelInfo{
			ID:         fieldInt(panel, "id"),
			Title:      specField(panel, "title"),
			Type:       specField(panel, "type"),
			Datasource: datasourceRef(panel["datasource"]),
		}
		if info.Datasource != "" {
			seen[info.Datasource] = struct{}{}
		}
		panels = append(panels, info)
		panels = append(panels, collectPanels(panel["panels"], seen)...)
	}
	return panels
}

func collectVariables(sp resource.Spec, seen map[string]struct{}) []VariableInfo {
	templating, ok := sp["templating"].(map[string]any)
	if !ok {
		return nil
	}
	list, ok := templating["list"].([]any)
	if !ok {
		return nil
	}
	var vars []VariableInfo
	for _, v := range list {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		info := VariableInfo{
			Name:       specField(entry, "name"),
			Type:       specField(entry, "type"),
			Datasource: datasourceRef(entry["datasource"]),
		}
		if info.Datasource != "" {
			seen[info.Datasource] = struct{}{}
		}
		vars = append(vars, info)
	}
	return vars
}

// datasourceRef reads a datasource reference. Old models store a plain
// name string; newer ones a {type, uid} object.
func datasourceRef(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if uid, ok := v["uid"].(string); ok {
			return uid
		}
		return ""
	default:
		return ""
	}
}

func specField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func fieldInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// changedFields returns the sorted union of top-level keys whose values
// differ between the two specs.
func changedFields(left, right resource.Spec) []string {
	keys := make(map[string]struct{}, len(left)+len(right))
	for k := range left {
		keys[k] = struct{}{}
	}
	for k := range right {
		keys[k] = struct{}{}
	}
	var changed []string
	for k := range keys {
		if resource.Fingerprint(resource.Spec{k: left[k]}) != resource.Fingerprint(resource.Spec{k: right[k]}) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// specTagSet reads the tags of a working spec.
func specTagSet(sp resource.Spec) resource.TagSet {
	switch raw := sp["tags"].(type) {
	case []string:
		return resource.NewTagSet(raw...)
	case []any:
		tags := make([]string, 0, len(raw))
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return resource.NewTagSet(tags...)
	default:
		return resource.NewTagSet()
	}
}
