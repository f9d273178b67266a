package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and collaborator adapters
// return these (optionally wrapped) so the engine can pick a failure policy
// without inspecting transport-specific error types.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record, chat member or message does not exist
// - ErrPermissionDenied: the bot lacks the rights for the requested action
// - ErrThreadNotFound: the target forum topic no longer exists
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: service or resource temporarily unavailable
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrPermissionDenied = errors.New("permission denied")
	ErrThreadNotFound   = errors.New("message thread not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnavailable      = errors.New("unavailable")
)

// Kind maps an error to a stable label used in logs and metrics.
// Errors carrying no sentinel are reported as "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrThreadNotFound):
		return "thread_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrUnavailable):
		return "transient"
	default:
		return "unknown"
	}
}
