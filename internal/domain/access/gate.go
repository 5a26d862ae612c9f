package access

import (
	"context"

	"github.com/dash-gate/dashgate/internal/domain/resource"
)

// Guard is an optional extra authorization condition evaluated per
// resource, typically a compiled CEL expression. A false result or an
// evaluation error denies access (fail closed). Implementations must be
// safe for concurrent use.
type Guard interface {
	Allow(ctx context.Context, res resource.Resource) (bool, error)
}

// Gate is the single point every read or write operation passes through
// before touching the resource store. It holds no mutable state: decisions
// are a pure function of the policy, the boundary, the optional guard, and
// the resource passed in, so concurrent use needs no coordination.
//
// The gate implements stealth denial: a tag mismatch, a boundary violation
// and a failed guard are all surfaced as ErrNotFound, identical to genuine
// absence, so an unauthorized caller cannot probe for protected resources.
type Gate struct {
	policy   Policy
	boundary Boundary
	guard    Guard
}

// NewGate composes a policy, a boundary and an optional guard (nil = no
// guard) into a gate.
func NewGate(policy Policy, boundary Boundary, guard Guard) *Gate {
	return &Gate{policy: policy, boundary: boundary, guard: guard}
}

// Policy returns the gate's tag policy.
func (g *Gate) Policy() Policy { return g.policy }

// Boundary returns the gate's folder boundary.
func (g *Gate) Boundary() Boundary { return g.boundary }

// AuthorizeRead returns nil if the resource is readable, ErrNotFound
// otherwise.
func (g *Gate) AuthorizeRead(ctx context.Context, res resource.Resource) error {
	if !g.policy.CanRead(res.Tags) {
		return ErrNotFound
	}
	return g.checkCommon(ctx, res)
}

// AuthorizeWrite returns nil if the resource is writable, ErrNotFound
// otherwise. The stealth rule applies to writes too: a write against a
// protected resource looks like a write against a missing one.
func (g *Gate) AuthorizeWrite(ctx context.Context, res resource.Resource) error {
	if !g.policy.CanWrite(res.Tags) {
		return ErrNotFound
	}
	return g.checkCommon(ctx, res)
}

// AuthorizeCreate checks the destination folder of a create. There is no
// existing resource to check tags on; a create destined outside the
// boundary is rejected as not-found on the parent folder, which the caller
// could never have reached anyway.
func (g *Gate) AuthorizeCreate(targetFolderPath string) error {
	if !g.boundary.Contains(targetFolderPath) {
		return ErrNotFound
	}
	return nil
}

// FilterList applies AuthorizeRead to each resource and silently drops
// failures. The caller receives a shorter result set in the original
// order, with no indication that items were hidden.
func (g *Gate) FilterList(ctx context.Context, resources []resource.Resource) []resource.Resource {
	out := make([]resource.Resource, 0, len(resources))
	for _, res := range resources {
		if g.AuthorizeRead(ctx, res) == nil {
			out = append(out, res)
		}
	}
	return out
}

func (g *Gate) checkCommon(ctx context.Context, res resource.Resource) error {
	if !g.boundary.Contains(res.FolderPath) {
		return ErrNotFound
	}
	if g.guard != nil {
		ok, err := g.guard.Allow(ctx, res)
		if err != nil || !ok {
			return ErrNotFound
		}
	}
	return nil
}
