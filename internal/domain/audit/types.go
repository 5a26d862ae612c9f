// Package audit contains domain types for DashGate's decision audit trail.
// Every gate decision and every write against the remote store can be
// recorded, giving operators a local answer to "what did the agent touch".
package audit

import (
	"context"
	"time"
)

// Decision is the recorded outcome of an operation.
type Decision string

const (
	// DecisionAllow marks an operation that passed the gate.
	DecisionAllow Decision = "allow"
	// DecisionDeny marks an operation rejected by the gate or policy.
	DecisionDeny Decision = "deny"
)

// Record is one audit entry.
type Record struct {
	// Time is when the decision was made (UTC).
	Time time.Time
	// Tool is the MCP tool name that triggered the operation.
	Tool string
	// Operation is the store-level action: read, create, update, delete,
	// list, copy.
	Operation string
	// Cluster is the cluster the operation targeted.
	Cluster string
	// Kind is the resource kind (dashboard, folder), when applicable.
	Kind string
	// UID identifies the resource, when known.
	UID string
	// Decision is allow or deny.
	Decision Decision
	// Reason is a short classification of a denial ("not found",
	// "permission denied"); empty for allows.
	Reason string
	// Fingerprint is the payload fingerprint for writes, empty otherwise.
	Fingerprint string
}

// Store persists audit records. Implementations must tolerate concurrent
// appends.
type Store interface {
	// Append stores one record.
	Append(ctx context.Context, rec Record) error
	// Close releases resources.
	Close() error
}

// NopStore discards all records. Used when auditing is not configured.
type NopStore struct{}

// Append implements Store.
func (NopStore) Append(context.Context, Record) error { return nil }

// Close implements Store.
func (NopStore) Close() error { return nil }
