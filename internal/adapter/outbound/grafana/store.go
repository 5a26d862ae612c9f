package grafana

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/domain/resource"
	"github.com/dash-gate/dashgate/internal/port/outbound"
)

// Compile-time checks that Client implements the outbound ports.
var (
	_ outbound.ResourceStore = (*Client)(nil)
	_ outbound.Diagnostics   = (*Client)(nil)
)

// GetResource implements outbound.ResourceStore.
func (c *Client) GetResource(ctx context.Context, cluster string, kind resource.Kind, uid string) (*resource.Resource, error) {
	switch kind {
	case resource.KindDashboard:
		return c.getDashboard(ctx, cluster, uid)
	case resource.KindFolder:
		return c.getFolder(ctx, cluster, uid)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", access.ErrInvalidArgument, kind)
	}
}

// ListResources implements outbound.ResourceStore.
func (c *Client) ListResources(ctx context.Context, cluster string, kind resource.Kind, filters outbound.ListFilters) ([]resource.Resource, error) {
	switch kind {
	case resource.KindDashboard:
		return c.searchDashboards(ctx, cluster, filters)
	case resource.KindFolder:
		return c.listFolders(ctx, cluster, filters)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", access.ErrInvalidArgument, kind)
	}
}

// CreateResource implements outbound.ResourceStore.
func (c *Client) CreateResource(ctx context.Context, cluster string, kind resource.Kind, spec resource.Spec, folderUID string) (*resource.Resource, error) {
	switch kind {
	case resource.KindDashboard:
		return c.saveDashboard(ctx, cluster, spec, folderUID, false)
	case resource.KindFolder:
		return c.createFolder(ctx, cluster, spec, folderUID)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", access.ErrInvalidArgument, kind)
	}
}

// UpdateResource implements outbound.ResourceStore.
func (c *Client) UpdateResource(ctx context.Context, cluster string, kind resource.Kind, uid string, spec resource.Spec, folderUID string) (*resource.Resource, error) {
	switch kind {
	case resource.KindDashboard:
		spec = spec.Clone()
		spec["uid"] = uid
		return c.saveDashboard(ctx, cluster, spec, folderUID, true)
	case resource.KindFolder:
		return c.updateFolder(ctx, cluster, uid, spec)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", access.ErrInvalidArgument, kind)
	}
}

// DeleteResource implements outbound.ResourceStore.
func (c *Client) DeleteResource(ctx context.Context, cluster string, kind resource.Kind, uid string) error {
	switch kind {
	case resource.KindDashboard:
		return c.doJSON(ctx, cluster, "DELETE", "/api/dashboards/uid/"+url.PathEscape(uid), nil, nil, nil)
	case resource.KindFolder:
		if err := c.doJSON(ctx, cluster, "DELETE", "/api/folders/"+url.PathEscape(uid), nil, nil, nil); err != nil {
			return err
		}
		c.invalidateFolderPaths(cluster)
		return nil
	default:
		return fmt.Errorf("%w: unsupported kind %q", access.ErrInvalidArgument, kind)
	}
}

// specTags reads the tags field of a dashboard spec. Both the decoded
// ([]any) and locally-built ([]string) representations occur.
func specTags(sp resource.Spec) resource.TagSet {
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

// specInt reads a numeric spec field, tolerating JSON's float64 decoding.
func specInt(sp resource.Spec, key string) int {
	switch v := sp[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func specString(sp resource.Spec, key string) string {
	s, _ := sp[key].(string)
	return s
}
