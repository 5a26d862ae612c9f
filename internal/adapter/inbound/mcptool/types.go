package mcptool

import (
	"github.com/dash-gate/dashgate/internal/domain/resource"
)

// Dashboard is the tool-facing view of a dashboard or folder.
type Dashboard struct {
	UID        string         `json:"uid"`
	Title      string         `json:"title"`
	Cluster    string         `json:"cluster"`
	Tags       []string       `json:"tags"`
	FolderUID  string         `json:"folderUid,omitempty"`
	FolderPath string         `json:"folderPath"`
	Version    int            `json:"version,omitempty"`
	Spec       map[string]any `json:"spec,omitempty"`
}

// toView converts a resource. Full specs travel only on single-resource
// responses; withSpec is false for list results to keep them small.
func toView(res *resource.Resource, withSpec bool) Dashboard {
	d := Dashboard{
		UID:        res.UID,
		Title:      res.Title,
		Cluster:    res.Cluster,
		Tags:       res.Tags.Slice(),
		FolderUID:  res.FolderUID,
		FolderPath: res.FolderPath,
		Version:    res.Version,
	}
	if withSpec && res.Spec != nil {
		d.Spec = res.Spec
	}
	return d
}

func toViews(resources []resource.Resource) []Dashboard {
	views := make([]Dashboard, 0, len(resources))
	for i := range resources {
		views = append(views, toView(&resources[i], false))
	}
	return views
}
