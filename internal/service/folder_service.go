package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/domain/audit"
	"github.com/dash-gate/dashgate/internal/domain/resource"
	"github.com/dash-gate/dashgate/internal/port/outbound"
)

// FolderService implements folder operations. Grafana folders carry no
// tags, so folder access is decided by the boundary alone: a folder
// outside the permitted subtree does not exist as far as the caller can
// tell.
type FolderService struct {
	store  outbound.ResourceStore
	gate   *access.Gate
	trail  audit.Store
	logger *slog.Logger
}

// NewFolderService builds a FolderService.
func NewFolderService(store outbound.ResourceStore, gate *access.Gate, trail audit.Store, logger *slog.Logger) *FolderService {
	return &FolderService{store: store, gate: gate, trail: trail, logger: logger}
}

func (s *FolderService) audited(ctx context.Context, tool, op, cluster, uid string, err error) error {
	rec := audit.Record{
		Time:      time.Now(),
		Tool:      tool,
		Operation: op,
		Cluster:   cluster,
		Kind:      string(resource.KindFolder),
		UID:       uid,
		Decision:  audit.DecisionAllow,
	}
	if err != nil {
		rec.Decision = audit.DecisionDeny
		rec.Reason = denialReason(err)
	}
	if appendErr := s.trail.Append(ctx, rec); appendErr != nil {
		s.logger.Warn("audit append failed", "tool", tool, "error", appendErr)
	}
	return err
}

// inBoundary checks a folder's own path against the boundary, mapping a
// violation to stealth absence.
func (s *FolderService) inBoundary(folderPath string) error {
	if !s.gate.Boundary().Contains(folderPath) {
		return access.ErrNotFound
	}
	return nil
}

// Get returns one folder.
func (s *FolderService) Get(ctx context.Context, cluster, uid string) (*resource.Resource, error) {
	res, err := s.get(ctx, cluster, uid)
	return res, s.audited(ctx, "get_folder", "read", cluster, uid, err)
}

func (s *FolderService) get(ctx context.Context, cluster, uid string) (*resource.Resource, error) {
	res, err := s.store.GetResource(ctx, cluster, resource.KindFolder, uid)
	if err != nil {
		return nil, err
	}
	if err := s.inBoundary(res.FolderPath); err != nil {
		return nil, err
	}
	return res, nil
}

// List returns the folders under parentUID ("" = top level) that lie
// inside the boundary.
func (s *FolderService) List(ctx context.Context, cluster, parentUID string, limit int) ([]resource.Resource, error) {
	folders, err := s.store.ListResources(ctx, cluster, resource.KindFolder, outbound.ListFilters{
		ParentUID: parentUID,
		Limit:     limit,
	})
	if err != nil {
		return nil, s.audited(ctx, "list_folders", "list", cluster, parentUID, err)
	}
	visible := folders[:0:0]
	for _, f := range folders {
		if s.inBoundary(f.FolderPath) == nil {
			visible = append(visible, f)
		}
	}
	return visible, s.audited(ctx, "list_folders", "list", cluster, parentUID, nil)
}

// Create creates a folder under parentUID. The new folder's resulting
// path must lie inside the boundary.
func (s *FolderService) Create(ctx context.Context, cluster, title, uid, parentUID string) (*resource.Resource, error) {
	res, err := s.create(ctx, cluster, title, uid, parentUID)
	resUID := uid
	if res != nil {
		resUID = res.UID
	}
	return res, s.audited(ctx, "create_folder", "create", cluster, resUID, err)
}

func (s *FolderService) create(ctx context.Context, cluster, title, uid, parentUID string) (*resource.Resource, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", access.ErrInvalidArgument)
	}
	parentPath, err := s.store.ResolveFolderPath(ctx, cluster, parentUID)
	if err != nil {
		return nil, access.ErrNotFound
	}
	newPath := access.NormalizePath(parentPath + "/" + title)
	if parentPath == "/" {
		newPath = access.NormalizePath("/" + title)
	}
	if err := s.inBoundary(newPath); err != nil {
		return nil, err
	}

	spec := resource.Spec{"title": title}
	if uid != "" {
		spec["uid"] = uid
	}
	return s.store.CreateResource(ctx, cluster, resource.KindFolder, spec, parentUID)
}

// Update renames a folder. Both the current and the resulting path must
// lie inside the boundary.
func (s *FolderService) Update(ctx context.Context, cluster, uid, title string) (*resource.Resource, error) {
	res, err := s.update(ctx, cluster, uid, title)
	return res, s.audited(ctx, "update_folder", "update", cluster, uid, err)
}

func (s *FolderService) update(ctx context.Context, cluster, uid, title string) (*resource.Resource, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", access.ErrInvalidArgument)
	}
	existing, err := s.get(ctx, cluster, uid)
	if err != nil {
		return nil, err
	}
	parentPath, err := s.store.ResolveFolderPath(ctx, cluster, existing.FolderUID)
	if err != nil {
		return nil, access.ErrNotFound
	}
	newPath := access.NormalizePath(parentPath + "/" + title)
	if parentPath == "/" {
		newPath = access.NormalizePath("/" + title)
	}
	if err := s.inBoundary(newPath); err != nil {
		return nil, err
	}

	spec := resource.Spec{"title": title, "version": existing.Version}
	return s.store.UpdateResource(ctx, cluster, resource.KindFolder, uid, spec, existing.FolderUID)
}

// Delete removes a folder inside the boundary.
func (s *FolderService) Delete(ctx context.Context, cluster, uid string) error {
	err := s.delete(ctx, cluster, uid)
	return s.audited(ctx, "delete_folder", "delete", cluster, uid, err)
}

func (s *FolderService) delete(ctx context.Context, cluster, uid string) error {
	if _, err := s.get(ctx, cluster, uid); err != nil {
		return err
	}
	return s.store.DeleteResource(ctx, cluster, resource.KindFolder, uid)
}
