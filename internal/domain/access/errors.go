package access

import "errors"

// Sentinel errors for the access-control core. Authorization failures
// collapse into ErrNotFound so a caller cannot distinguish "absent" from
// "present but forbidden".
var (
	// ErrNotFound is the stealth outcome: returned for genuinely absent
	// resources and for every authorization failure on reads and writes.
	ErrNotFound = errors.New("resource not found")

	// ErrPermissionDenied is returned only when the caller supplies an
	// explicit target UID that exists but fails the write-tag check.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidPolicy indicates a policy configuration that must abort
	// startup: empty write tags or read tags not contained in write tags.
	ErrInvalidPolicy = errors.New("invalid access policy")

	// ErrInvalidArgument indicates a malformed input payload, caught
	// before any authorization check.
	ErrInvalidArgument = errors.New("invalid argument")
)
