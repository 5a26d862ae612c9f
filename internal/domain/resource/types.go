// Package resource contains the domain model for Grafana resources
// mediated by DashGate: dashboards and folders, their tags, and their
// position in the folder hierarchy of a cluster.
package resource

import (
	"sort"
)

// Kind identifies the type of a resource in the remote store.
type Kind string

const (
	// KindDashboard is a Grafana dashboard.
	KindDashboard Kind = "dashboard"
	// KindFolder is a Grafana folder.
	KindFolder Kind = "folder"
)

// TagSet is an unordered set of opaque tag strings. Insertion order carries
// no meaning and must never affect comparisons.
type TagSet map[string]struct{}

// NewTagSet builds a TagSet from the given tags, dropping duplicates and
// empty strings.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		if t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

// Has reports whether the set contains the given tag.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// ContainsAll reports whether every tag in other is present in s.
// An empty other is contained in any set.
func (s TagSet) ContainsAll(other TagSet) bool {
	for t := range other {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

// Union returns a new set containing the tags of both s and other.
// Neither receiver nor argument is modified.
func (s TagSet) Union(other TagSet) TagSet {
	u := make(TagSet, len(s)+len(other))
	for t := range s {
		u[t] = struct{}{}
	}
	for t := range other {
		u[t] = struct{}{}
	}
	return u
}

// Len returns the number of tags in the set.
func (s TagSet) Len() int { return len(s) }

// Slice returns the tags in sorted order, for stable wire payloads and logs.
func (s TagSet) Slice() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Spec is the raw dashboard or folder definition as exchanged with the
// Grafana API. DashGate treats it as opaque apart from the identity,
// title, tags and version fields it manages.
type Spec map[string]any

// Clone returns a shallow copy of the spec. Top-level keys can be added or
// removed on the copy without affecting the original; nested values are
// shared.
func (sp Spec) Clone() Spec {
	out := make(Spec, len(sp))
	for k, v := range sp {
		out[k] = v
	}
	return out
}

// Resource is a transient view of a remote resource, fetched per request
// and evaluated by the access gate. DashGate never persists resources.
type Resource struct {
	// UID is the resource's unique identifier within its cluster.
	UID string
	// Kind is dashboard or folder.
	Kind Kind
	// Title is the display title.
	Title string
	// Cluster names the cluster the resource was fetched from.
	Cluster string
	// Tags are the resource's tags. Always empty for folders, which carry
	// no tags in Grafana.
	Tags TagSet
	// FolderUID is the UID of the containing folder ("" = General/root).
	FolderUID string
	// FolderPath is the resolved absolute title path of the containing
	// folder (for folders, of the folder itself). Always begins with "/".
	FolderPath string
	// Version is the store-side version number, used for overwrites.
	Version int
	// Spec is the full definition as returned by the store.
	Spec Spec
}
