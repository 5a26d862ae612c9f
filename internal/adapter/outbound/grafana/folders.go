package grafana

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/domain/resource"
	"github.com/dash-gate/dashgate/internal/port/outbound"
)

// maxFolderDepth bounds the parent-chain walk; Grafana's own nesting
// limit is far below this, so hitting it means a cycle.
const maxFolderDepth = 32

// folderInfo is the /api/folders/{uid} response.
type folderInfo struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	ParentUID string `json:"parentUid"`
	Version   int    `json:"version"`
	URL       string `json:"url"`
}

func (fi folderInfo) spec() resource.Spec {
	return resource.Spec{
		"uid":       fi.UID,
		"title":     fi.Title,
		"parentUid": fi.ParentUID,
		"version":   fi.Version,
	}
}

func (c *Client) getFolder(ctx context.Context, cluster, uid string) (*resource.Resource, error) {
	var info folderInfo
	if err := c.doJSON(ctx, cluster, "GET", "/api/folders/"+url.PathEscape(uid), nil, nil, &info); err != nil {
		return nil, err
	}
	path, err := c.ResolveFolderPath(ctx, cluster, info.UID)
	if err != nil {
		return nil, fmt.Errorf("resolve path of folder %q: %w", uid, err)
	}
	return c.folderResource(cluster, info, path), nil
}

// folderResource maps a folder to the resource model. FolderPath is the
// folder's own absolute path, which is what the boundary check needs.
func (c *Client) folderResource(cluster string, info folderInfo, path string) *resource.Resource {
	return &resource.Resource{
		UID:        info.UID,
		Kind:       resource.KindFolder,
		Title:      info.Title,
		Cluster:    cluster,
		Tags:       resource.NewTagSet(),
		FolderUID:  info.ParentUID,
		FolderPath: path,
		Version:    info.Version,
		Spec:       info.spec(),
	}
}

func (c *Client) listFolders(ctx context.Context, cluster string, filters outbound.ListFilters) ([]resource.Resource, error) {
	query := url.Values{}
	if filters.ParentUID != "" {
		query.Set("parentUid", filters.ParentUID)
	}
	if filters.Limit > 0 {
		query.Set("limit", strconv.Itoa(filters.Limit))
	}
	if filters.Page > 0 {
		query.Set("page", strconv.Itoa(filters.Page))
	}

	var infos []folderInfo
	if err := c.doJSON(ctx, cluster, "GET", "/api/folders", query, nil, &infos); err != nil {
		return nil, err
	}

	resources := make([]resource.Resource, 0, len(infos))
	for _, info := range infos {
		path, err := c.ResolveFolderPath(ctx, cluster, info.UID)
		if err != nil {
			continue
		}
		resources = append(resources, *c.folderResource(cluster, info, path))
	}
	return resources, nil
}

func (c *Client) createFolder(ctx context.Context, cluster string, spec resource.Spec, parentUID string) (*resource.Resource, error) {
	payload := map[string]any{
		"title": specString(spec, "title"),
	}
	if uid := specString(spec, "uid"); uid != "" {
		payload["uid"] = uid
	}
	if parentUID != "" {
		payload["parentUid"] = parentUID
	}
	var info folderInfo
	if err := c.doJSON(ctx, cluster, "POST", "/api/folders", nil, payload, &info); err != nil {
		return nil, err
	}
	c.invalidateFolderPaths(cluster)

	path, err := c.ResolveFolderPath(ctx, cluster, info.UID)
	if err != nil {
		return nil, fmt.Errorf("resolve path of new folder %q: %w", info.UID, err)
	}
	return c.folderResource(cluster, info, path), nil
}

func (c *Client) updateFolder(ctx context.Context, cluster, uid string, spec resource.Spec) (*resource.Resource, error) {
	payload := map[string]any{
		"title":     specString(spec, "title"),
		"overwrite": true,
	}
	if version := specInt(spec, "version"); version > 0 {
		payload["version"] = version
		delete(payload, "overwrite")
	}
	var info folderInfo
	if err := c.doJSON(ctx, cluster, "PUT", "/api/folders/"+url.PathEscape(uid), nil, payload, &info); err != nil {
		return nil, err
	}
	c.invalidateFolderPaths(cluster)

	path, err := c.ResolveFolderPath(ctx, cluster, info.UID)
	if err != nil {
		return nil, fmt.Errorf("resolve path of folder %q: %w", uid, err)
	}
	return c.folderResource(cluster, info, path), nil
}

// ResolveFolderPath implements outbound.ResourceStore. It walks the
// parent chain, caching every resolved prefix; the cache is dropped
// whenever a folder on the cluster is written.
func (c *Client) ResolveFolderPath(ctx context.Context, cluster, folderUID string) (string, error) {
	if folderUID == "" {
		return "/", nil
	}

	cacheKey := cluster + "/" + folderUID
	c.mu.RLock()
	path, ok := c.folderPaths[cacheKey]
	c.mu.RUnlock()
	if ok {
		return path, nil
	}

	// Titles from the target up to the root, collected child-first.
	var titles []string
	uid := folderUID
	for range maxFolderDepth {
		var info folderInfo
		if err := c.doJSON(ctx, cluster, "GET", "/api/folders/"+url.PathEscape(uid), nil, nil, &info); err != nil {
			return "", fmt.Errorf("resolve folder %q: %w", folderUID, err)
		}
		titles = append(titles, info.Title)
		if info.ParentUID == "" {
			for i, j := 0, len(titles)-1; i < j; i, j = i+1, j-1 {
				titles[i], titles[j] = titles[j], titles[i]
			}
			path = access.NormalizePath("/" + strings.Join(titles, "/"))
			c.mu.Lock()
			c.folderPaths[cacheKey] = path
			c.mu.Unlock()
			return path, nil
		}
		uid = info.ParentUID
	}
	return "", fmt.Errorf("resolve folder %q: parent chain exceeds depth %d", folderUID, maxFolderDepth)
}

func (c *Client) invalidateFolderPaths(cluster string) {
	prefix := cluster + "/"
	c.mu.Lock()
	for key := range c.folderPaths {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(c.folderPaths, key)
		}
	}
	c.mu.Unlock()
}
