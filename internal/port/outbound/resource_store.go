// Package outbound defines the ports DashGate's core depends on. Adapters
// under internal/adapter/outbound implement them.
package outbound

import (
	"context"

	"github.com/dash-gate/dashgate/internal/domain/resource"
)

// ListFilters narrows a ListResources call. Zero values mean "no filter".
type ListFilters struct {
	// Query matches against resource titles.
	Query string
	// Tags restricts results to resources carrying all given tags.
	Tags []string
	// FolderUIDs restricts results to the given folders.
	FolderUIDs []string
	// DashboardUIDs restricts results to specific dashboards.
	DashboardUIDs []string
	// ParentUID restricts a folder listing to children of this folder.
	ParentUID string
	// Limit caps the number of results; Page selects the result page.
	Limit int
	Page  int
}

// ResourceStore is the remote dashboarding API, abstracted as
// cluster-qualified CRUD plus folder-ancestry resolution. One call per
// logical action; the store performs no authorization of its own, every
// call except the raw copy probe must be preceded by an access gate check.
type ResourceStore interface {
	// GetResource fetches one resource, with its folder path resolved.
	// Genuine absence is reported as access.ErrNotFound.
	GetResource(ctx context.Context, cluster string, kind resource.Kind, uid string) (*resource.Resource, error)

	// ListResources searches resources of one kind.
	ListResources(ctx context.Context, cluster string, kind resource.Kind, filters ListFilters) ([]resource.Resource, error)

	// CreateResource creates a resource from the given spec inside the
	// folder identified by folderUID ("" = General).
	CreateResource(ctx context.Context, cluster string, kind resource.Kind, spec resource.Spec, folderUID string) (*resource.Resource, error)

	// UpdateResource overwrites an existing resource.
	UpdateResource(ctx context.Context, cluster string, kind resource.Kind, uid string, spec resource.Spec, folderUID string) (*resource.Resource, error)

	// DeleteResource removes a resource.
	DeleteResource(ctx context.Context, cluster string, kind resource.Kind, uid string) error

	// ResolveFolderPath turns a folder UID into the absolute title path of
	// that folder ("" resolves to "/"). Callers treat a resolution failure
	// as outside any boundary (fail closed).
	ResolveFolderPath(ctx context.Context, cluster string, folderUID string) (string, error)
}
