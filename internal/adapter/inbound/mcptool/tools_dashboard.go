package mcptool

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dash-gate/dashgate/internal/port/outbound"
	"github.com/dash-gate/dashgate/internal/service"
)

type readDashboardInput struct {
	Cluster string `json:"cluster" jsonschema:"cluster to read from"`
	UID     string `json:"uid" jsonschema:"dashboard uid"`
}

type dashboardOutput struct {
	Dashboard Dashboard `json:"dashboard"`
}

type searchDashboardsInput struct {
	Cluster   string   `json:"cluster" jsonschema:"cluster to search"`
	Query     string   `json:"query,omitempty" jsonschema:"title substring to match"`
	Tags      []string `json:"tags,omitempty" jsonschema:"tags every result must carry"`
	FolderUID string   `json:"folderUid,omitempty" jsonschema:"restrict results to this folder"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum results, 1 to 5000, default 1000"`
	Page      int      `json:"page,omitempty" jsonschema:"result page, starting at 1"`
}

type searchDashboardsOutput struct {
	Dashboards []Dashboard `json:"dashboards"`
	Count      int         `json:"count"`
}

type createDashboardInput struct {
	Cluster   string         `json:"cluster" jsonschema:"cluster to create on"`
	Title     string         `json:"title" jsonschema:"dashboard title"`
	FolderUID string         `json:"folderUid,omitempty" jsonschema:"destination folder uid, empty for the top level"`
	Spec      map[string]any `json:"spec,omitempty" jsonschema:"dashboard model, a minimal empty dashboard when omitted"`
}

type updateDashboardInput struct {
	Cluster string         `json:"cluster" jsonschema:"cluster the dashboard lives on"`
	UID     string         `json:"uid" jsonschema:"dashboard uid"`
	Spec    map[string]any `json:"spec" jsonschema:"replacement dashboard model"`
}

type deleteDashboardInput struct {
	Cluster string `json:"cluster" jsonschema:"cluster the dashboard lives on"`
	UID     string `json:"uid" jsonschema:"dashboard uid"`
}

type deleteOutput struct {
	Deleted bool `json:"deleted"`
}

type copyDashboardInput struct {
	SourceCluster string `json:"sourceCluster" jsonschema:"cluster to copy from"`
	SourceUID     string `json:"sourceUid" jsonschema:"dashboard to copy"`
	Title         string `json:"title" jsonschema:"title for the copy"`
	TargetCluster string `json:"targetCluster,omitempty" jsonschema:"destination cluster, defaults to the source cluster"`
	TargetUID     string `json:"targetUid,omitempty" jsonschema:"explicit destination uid, may overwrite an existing dashboard"`
	FolderUID     string `json:"folderUid,omitempty" jsonschema:"destination folder uid, defaults to the source dashboard's folder"`
}

type copyDashboardOutput struct {
	Dashboard Dashboard `json:"dashboard"`
	Overwrote bool      `json:"overwrote"`
}

type snapshotDashboardInput struct {
	Cluster       string `json:"cluster" jsonschema:"cluster the dashboard lives on"`
	UID           string `json:"uid" jsonschema:"dashboard uid"`
	Name          string `json:"name,omitempty" jsonschema:"snapshot name, defaults to the dashboard title"`
	ExpiresSecond int    `json:"expiresSeconds,omitempty" jsonschema:"snapshot lifetime in seconds, 0 keeps it forever"`
}

type snapshotDashboardOutput struct {
	Key       string `json:"key"`
	DeleteKey string `json:"deleteKey,omitempty"`
	URL       string `json:"url"`
}

type renderPanelInput struct {
	Cluster string `json:"cluster" jsonschema:"cluster the dashboard lives on"`
	UID     string `json:"uid" jsonschema:"dashboard uid"`
	PanelID int    `json:"panelId" jsonschema:"panel id to render"`
	Width   int    `json:"width,omitempty" jsonschema:"image width in pixels"`
	Height  int    `json:"height,omitempty" jsonschema:"image height in pixels"`
	From    string `json:"from,omitempty" jsonschema:"time range start, e.g. now-6h"`
	To      string `json:"to,omitempty" jsonschema:"time range end, e.g. now"`
}

type renderPanelOutput struct {
	ImageBase64 string `json:"imageBase64"`
	SizeBytes   int    `json:"sizeBytes"`
}

type inspectDashboardInput struct {
	Cluster string `json:"cluster" jsonschema:"cluster the dashboard lives on"`
	UID     string `json:"uid" jsonschema:"dashboard uid"`
}

type panelView struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Datasource string `json:"datasource,omitempty"`
}

type variableView struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Datasource string `json:"datasource,omitempty"`
}

type inspectDashboardOutput struct {
	Dashboard      Dashboard      `json:"dashboard"`
	TimeFrom       string         `json:"timeFrom,omitempty"`
	TimeTo         string         `json:"timeTo,omitempty"`
	Refresh        string         `json:"refresh,omitempty"`
	PanelCount     int            `json:"panelCount"`
	Panels         []panelView    `json:"panels"`
	Variables      []variableView `json:"variables"`
	DatasourceUIDs []string       `json:"datasourceUids"`
}

type compareDashboardsInput struct {
	LeftCluster  string `json:"leftCluster" jsonschema:"cluster of the first dashboard"`
	LeftUID      string `json:"leftUid" jsonschema:"first dashboard uid"`
	RightCluster string `json:"rightCluster" jsonschema:"cluster of the second dashboard"`
	RightUID     string `json:"rightUid" jsonschema:"second dashboard uid"`
}

type compareDashboardsOutput struct {
	LeftFingerprint  string   `json:"leftFingerprint"`
	RightFingerprint string   `json:"rightFingerprint"`
	Identical        bool     `json:"identical"`
	ChangedFields    []string `json:"changedFields"`
}

func (s *Server) registerDashboardTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "read_dashboard",
		Description: "Read one dashboard, including its full model.",
	}, instrument(s, "read_dashboard", func(ctx context.Context, in readDashboardInput) (dashboardOutput, error) {
		res, err := s.dashboards.Get(ctx, in.Cluster, in.UID)
		if err != nil {
			return dashboardOutput{}, err
		}
		return dashboardOutput{Dashboard: toView(res, true)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "search_dashboards",
		Description: "Search dashboards by title, tags and folder.",
	}, instrument(s, "search_dashboards", func(ctx context.Context, in searchDashboardsInput) (searchDashboardsOutput, error) {
		results, err := s.dashboards.Search(ctx, service.SearchParams{
			Cluster:   in.Cluster,
			Query:     in.Query,
			Tags:      in.Tags,
			FolderUID: in.FolderUID,
			Limit:     in.Limit,
			Page:      in.Page,
		})
		if err != nil {
			return searchDashboardsOutput{}, err
		}
		views := toViews(results)
		return searchDashboardsOutput{Dashboards: views, Count: len(views)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "create_dashboard",
		Description: "Create a new dashboard. The configured protection tags are added automatically.",
	}, instrument(s, "create_dashboard", func(ctx context.Context, in createDashboardInput) (dashboardOutput, error) {
		res, err := s.dashboards.Create(ctx, in.Cluster, in.Title, in.FolderUID, in.Spec)
		if err != nil {
			return dashboardOutput{}, err
		}
		return dashboardOutput{Dashboard: toView(res, true)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "update_dashboard",
		Description: "Replace the model of an existing dashboard.",
	}, instrument(s, "update_dashboard", func(ctx context.Context, in updateDashboardInput) (dashboardOutput, error) {
		res, err := s.dashboards.Update(ctx, in.Cluster, in.UID, in.Spec)
		if err != nil {
			return dashboardOutput{}, err
		}
		return dashboardOutput{Dashboard: toView(res, true)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "delete_dashboard",
		Description: "Delete a dashboard.",
	}, instrument(s, "delete_dashboard", func(ctx context.Context, in deleteDashboardInput) (deleteOutput, error) {
		if err := s.dashboards.Delete(ctx, in.Cluster, in.UID); err != nil {
			return deleteOutput{}, err
		}
		return deleteOutput{Deleted: true}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "copy_dashboard",
		Description: "Copy a dashboard within a cluster or to another cluster, optionally overwriting an explicit target uid.",
	}, instrument(s, "copy_dashboard", func(ctx context.Context, in copyDashboardInput) (copyDashboardOutput, error) {
		result, err := s.dashboards.Copy(ctx, service.CopyParams{
			SourceCluster: in.SourceCluster,
			SourceUID:     in.SourceUID,
			TargetCluster: in.TargetCluster,
			TargetUID:     in.TargetUID,
			FolderUID:     in.FolderUID,
			Title:         in.Title,
		})
		if err != nil {
			return copyDashboardOutput{}, err
		}
		return copyDashboardOutput{
			Dashboard: toView(result.Resource, true),
			Overwrote: result.Overwrote,
		}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "snapshot_dashboard",
		Description: "Create a point-in-time snapshot of a dashboard.",
	}, instrument(s, "snapshot_dashboard", func(ctx context.Context, in snapshotDashboardInput) (snapshotDashboardOutput, error) {
		snap, err := s.dashboards.Snapshot(ctx, in.Cluster, in.UID, in.Name,
			time.Duration(in.ExpiresSecond)*time.Second)
		if err != nil {
			return snapshotDashboardOutput{}, err
		}
		return snapshotDashboardOutput{Key: snap.Key, DeleteKey: snap.DeleteKey, URL: snap.URL}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "render_panel",
		Description: "Render one dashboard panel to a PNG image.",
	}, instrument(s, "render_panel", func(ctx context.Context, in renderPanelInput) (renderPanelOutput, error) {
		img, err := s.dashboards.RenderPanel(ctx, in.Cluster, outbound.RenderRequest{
			DashboardUID: in.UID,
			PanelID:      in.PanelID,
			Width:        in.Width,
			Height:       in.Height,
			From:         in.From,
			To:           in.To,
		})
		if err != nil {
			return renderPanelOutput{}, err
		}
		return renderPanelOutput{
			ImageBase64: base64.StdEncoding.EncodeToString(img),
			SizeBytes:   len(img),
		}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "inspect_dashboard",
		Description: "Report the structure of a dashboard: panels, template variables and referenced datasources.",
	}, instrument(s, "inspect_dashboard", func(ctx context.Context, in inspectDashboardInput) (inspectDashboardOutput, error) {
		report, err := s.dashboards.Inspect(ctx, in.Cluster, in.UID)
		if err != nil {
			return inspectDashboardOutput{}, err
		}
		out := inspectDashboardOutput{
			Dashboard:      toView(report.Dashboard, false),
			TimeFrom:       report.TimeFrom,
			TimeTo:         report.TimeTo,
			Refresh:        report.Refresh,
			PanelCount:     len(report.Panels),
			Panels:         make([]panelView, 0, len(report.Panels)),
			Variables:      make([]variableView, 0, len(report.Variables)),
			DatasourceUIDs: report.DatasourceUIDs,
		}
		for _, p := range report.Panels {
			out.Panels = append(out.Panels, panelView{ID: p.ID, Title: p.Title, Type: p.Type, Datasource: p.Datasource})
		}
		for _, v := range report.Variables {
			out.Variables = append(out.Variables, variableView{Name: v.Name, Type: v.Type, Datasource: v.Datasource})
		}
		return out, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "compare_dashboards",
		Description: "Compare two dashboards by payload fingerprint and report differing fields.",
	}, instrument(s, "compare_dashboards", func(ctx context.Context, in compareDashboardsInput) (compareDashboardsOutput, error) {
		result, err := s.dashboards.Compare(ctx, in.LeftCluster, in.LeftUID, in.RightCluster, in.RightUID)
		if err != nil {
			return compareDashboardsOutput{}, err
		}
		return compareDashboardsOutput{
			LeftFingerprint:  result.LeftFingerprint,
			RightFingerprint: result.RightFingerprint,
			Identical:        result.Identical,
			ChangedFields:    result.ChangedFields,
		}, nil
	}))
}
