// Package access implements DashGate's access-control core: the tag-based
// read/write policy, the chroot-style folder boundary, and the gate that
// composes them into a single allow/deny decision per operation.
package access

import (
	"fmt"

	"github.com/dash-gate/dashgate/internal/domain/resource"
)

// Policy holds the configured read and write tag requirements. Constructed
// once at startup, immutable thereafter.
type Policy struct {
	// ReadTags a resource must carry to be readable. Empty = unrestricted
	// read.
	ReadTags resource.TagSet
	// WriteTags a resource must carry to be writable. Never empty in a
	// valid policy, so an untagged resource is never writable.
	WriteTags resource.TagSet
}

// NewPolicy builds a Policy from configured tag lists.
func NewPolicy(readTags, writeTags []string) Policy {
	return Policy{
		ReadTags:  resource.NewTagSet(readTags...),
		WriteTags: resource.NewTagSet(writeTags...),
	}
}

// Validate checks the startup invariants: WriteTags must be non-empty and
// ReadTags must be a subset of WriteTags. The subset rule guarantees the
// agent can always read back what it is permitted to write; violating it
// makes self-created resources invisible to the agent.
func (p Policy) Validate() error {
	if p.WriteTags.Len() == 0 {
		return fmt.Errorf("%w: write tags must not be empty", ErrInvalidPolicy)
	}
	if !p.WriteTags.ContainsAll(p.ReadTags) {
		return fmt.Errorf("%w: read tags %v must be a subset of write tags %v",
			ErrInvalidPolicy, p.ReadTags.Slice(), p.WriteTags.Slice())
	}
	return nil
}

// CanRead reports whether a resource carrying the given tags is readable.
// With no configured read tags, every resource is readable.
func (p Policy) CanRead(tags resource.TagSet) bool {
	if p.ReadTags.Len() == 0 {
		return true
	}
	return tags.ContainsAll(p.ReadTags)
}

// CanWrite reports whether a resource carrying the given tags is writable.
func (p Policy) CanWrite(tags resource.TagSet) bool {
	return tags.ContainsAll(p.WriteTags)
}

// ProtectedTags returns the tag set to stamp onto any resource DashGate
// creates or overwrites: the caller's tags plus the write tags, so every
// such resource stays both readable and writable under this policy.
func (p Policy) ProtectedTags(callerTags resource.TagSet) resource.TagSet {
	return callerTags.Union(p.WriteTags)
}
