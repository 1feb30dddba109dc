package backend

import "errors"

// The error taxonomy the contract recognizes (spec.md §4.1, §7). Backend
// implementations wrap one of these sentinels with fmt.Errorf("...: %w",
// ErrTransient) so callers can classify with errors.Is, mirroring the
// teacher's provider.SoftError sentinel used the same way in
// controller.go's Run loop.
var (
	// ErrTransient means the operation should be retried with backoff;
	// if the retry budget is exhausted, log at warn and let the next
	// reconciliation pick it up.
	ErrTransient = errors.New("backend: transient error")

	// ErrConflict means the observed state diverged from a cached view;
	// re-read and retry from the refreshed view.
	ErrConflict = errors.New("backend: conflict")

	// ErrInvariantViolation means a structural assumption broke (e.g. the
	// configured base domain no longer exists in the zone). Log at warn
	// and drop the operation; the loop continues.
	ErrInvariantViolation = errors.New("backend: invariant violation")

	// ErrFatal means the backend cannot proceed at all (bad credentials,
	// unreachable endpoint, missing schema). Propagate to terminate the
	// daemon.
	ErrFatal = errors.New("backend: fatal error")
)

// ErrNotTracked names the taxonomy's NOT_TRACKED class: events referencing
// an untracked container ID. The daemon does not return it; it logs such
// events at warn and drops them. Kept here because it shares the
// taxonomy's log-then-drop shape.
var ErrNotTracked = errors.New("daemon: container not tracked")
