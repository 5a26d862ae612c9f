// Package transfer implements the copy/overwrite resolution algorithm for
// dashboard copies: target UID selection, folder inheritance, the
// destination existence probe, and the create-vs-overwrite decision.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/domain/resource"
	"github.com/dash-gate/dashgate/internal/port/outbound"
)

// uidLength matches the Grafana UID format the original server generated:
// the first 10 hex characters of a random UUID.
const uidLength = 10

// NewUID generates a fresh dashboard UID.
func NewUID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:])[:uidLength]
}

// Request describes one copy invocation. It is constructed per call,
// consumed by the resolver, and discarded afterwards.
type Request struct {
	// SourceCluster and SourceUID identify the dashboard to copy.
	SourceCluster string
	SourceUID     string
	// TargetCluster defaults to SourceCluster when empty.
	TargetCluster string
	// TargetUID, when set, is used verbatim regardless of cluster.
	TargetUID string
	// FolderUID, when set, overrides the inherited source folder.
	FolderUID string
	// Title is the title for the copy. Required.
	Title string
}

// Normalize fills defaulted fields.
func (r *Request) Normalize() {
	if r.TargetCluster == "" {
		r.TargetCluster = r.SourceCluster
	}
}

// Validate rejects malformed requests before any authorization check.
func (r Request) Validate() error {
	if r.SourceCluster == "" {
		return fmt.Errorf("%w: source cluster is required", access.ErrInvalidArgument)
	}
	if r.SourceUID == "" {
		return fmt.Errorf("%w: source uid is required", access.ErrInvalidArgument)
	}
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", access.ErrInvalidArgument)
	}
	return nil
}

// CrossCluster reports whether the copy targets a different cluster.
// Callers must Normalize first.
func (r Request) CrossCluster() bool {
	return r.TargetCluster != r.SourceCluster
}

// Mode is the write mode the resolver decided on.
type Mode int

const (
	// ModeCreate writes a new resource at the destination.
	ModeCreate Mode = iota
	// ModeOverwrite updates an existing destination resource.
	ModeOverwrite
)

// String returns "create" or "overwrite".
func (m Mode) String() string {
	if m == ModeOverwrite {
		return "overwrite"
	}
	return "create"
}

// Plan is the fully-resolved destination write: identity, folder, mode and
// the prepared payload to hand to the resource store.
type Plan struct {
	TargetCluster string
	TargetUID     string
	FolderUID     string
	FolderPath    string
	Mode          Mode
	// Tags is the merged protection tag set stamped on the destination.
	Tags resource.TagSet
	// Spec is the prepared dashboard payload: source spec with identity
	// fields stripped, retitled, re-identified and retagged. On overwrite
	// it carries the destination's current version.
	Spec resource.Spec
}

// Resolver decides the destination identity and write mode for a copy.
// It depends on the access gate to authorize the final write and on the
// resource store for the existence probe. Per-request state is local to
// each Resolve call; a Resolver is safe for concurrent use.
type Resolver struct {
	store outbound.ResourceStore
	gate  *access.Gate

	// newUID generates destination UIDs; replaceable in tests.
	newUID func() string
}

// NewResolver builds a Resolver.
func NewResolver(store outbound.ResourceStore, gate *access.Gate) *Resolver {
	return &Resolver{store: store, gate: gate, newUID: NewUID}
}

// Resolve runs the copy algorithm against an already-fetched (and
// read-authorized) source dashboard. Steps, in order:
//
//  1. Target UID: explicit > fresh UID for same-cluster > source UID for
//     cross-cluster.
//  2. Folder: explicit folderUID or inherit the source's folder.
//  3. Existence probe on the target cluster; an existing destination is an
//     overwrite and its tags must satisfy the write policy, otherwise the
//     copy fails with an explicit ErrPermissionDenied and no mutation.
//  4. Boundary check on the resolved destination folder path; a violation
//     is ErrNotFound, consistent with normal write semantics.
//
// The probe result is not re-validated before the write; probe-to-write
// races are out of scope.
func (r *Resolver) Resolve(ctx context.Context, req Request, source *resource.Resource) (*Plan, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	plan := &Plan{
		TargetCluster: req.TargetCluster,
		TargetUID:     r.resolveTargetUID(req),
		FolderUID:     req.FolderUID,
	}
	if plan.FolderUID == "" {
		plan.FolderUID = source.FolderUID
	}

	existing, err := r.probe(ctx, plan.TargetCluster, plan.TargetUID)
	if err != nil {
		return nil, err
	}

	policy := r.gate.Policy()
	plan.Tags = policy.ProtectedTags(source.Tags)

	if existing != nil {
		// The caller already knows this UID, so the denial is explicit
		// rather than stealth.
		if !policy.CanWrite(existing.Tags) {
			return nil, fmt.Errorf("%w: dashboard %q on cluster %q is not managed by this server",
				access.ErrPermissionDenied, plan.TargetUID, plan.TargetCluster)
		}
		plan.Mode = ModeOverwrite
		plan.Spec = prepareSpec(source.Spec, req.Title, plan.TargetUID, plan.Tags, existing.Version)
	} else {
		plan.Mode = ModeCreate
		plan.Spec = prepareSpec(source.Spec, req.Title, plan.TargetUID, plan.Tags, 0)
	}

	plan.FolderPath, err = r.store.ResolveFolderPath(ctx, plan.TargetCluster, plan.FolderUID)
	if err != nil {
		// Broken ancestry: the destination is treated as outside the
		// boundary, and its existence was never confirmed to the caller.
		return nil, access.ErrNotFound
	}

	switch plan.Mode {
	case ModeCreate:
		if err := r.gate.AuthorizeCreate(plan.FolderPath); err != nil {
			return nil, err
		}
	case ModeOverwrite:
		dest := *existing
		dest.FolderPath = plan.FolderPath
		if err := r.gate.AuthorizeWrite(ctx, dest); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

// resolveTargetUID implements step 1. Same-cluster copies never reuse the
// source identity; cross-cluster copies preserve it so downstream links
// keep working across environments.
func (r *Resolver) resolveTargetUID(req Request) string {
	if req.TargetUID != "" {
		return req.TargetUID
	}
	if req.CrossCluster() {
		return req.SourceUID
	}
	uid := r.newUID()
	for uid == req.SourceUID {
		uid = r.newUID()
	}
	return uid
}

// probe looks up the destination UID on the target cluster. Absence is not
// an error here; upstream failures propagate.
func (r *Resolver) probe(ctx context.Context, cluster, uid string) (*resource.Resource, error) {
	res, err := r.store.GetResource(ctx, cluster, resource.KindDashboard, uid)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// prepareSpec builds the destination payload: identity and server-side
// fields stripped, new title, resolved UID, merged tags, and on overwrite
// the destination's current version.
func prepareSpec(src resource.Spec, title, uid string, tags resource.TagSet, version int) resource.Spec {
	sp := src.Clone()
	delete(sp, "id")
	delete(sp, "url")
	delete(sp, "version")
	sp["title"] = title
	sp["uid"] = uid
	sp["tags"] = tags.Slice()
	if version > 0 {
		sp["version"] = version
	}
	return sp
}
