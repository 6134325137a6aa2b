package errors

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrGroupNotFound     = errors.New("group not found")
	ErrPollNotFound      = errors.New("poll not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrAlreadyMember     = errors.New("user is already a member of the group")
	ErrAlreadyVoted      = errors.New("user has already voted in the poll")
	ErrPollClosed        = errors.New("poll deadline has passed")
	ErrNotMember         = errors.New("user is not a member of the group")
	ErrAdminAccessDenied = errors.New("admin role required")
	ErrNotPollAuthor     = errors.New("only the poll author may modify the poll")
	ErrLastAdmin         = errors.New("group must keep at least one admin")
	ErrPollGroupMismatch = errors.New("poll does not belong to the group")
	ErrOptionNotFound    = errors.New("option does not belong to the poll")
	ErrTransientConflict = errors.New("transient storage conflict, retry the request")
)

// Kind groups failures for the boundary layer.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindForbidden          Kind = "forbidden"
	KindInvariantViolation Kind = "invariant_violation"
	KindValidation         Kind = "validation"
	KindIntegrity          Kind = "integrity"
	KindTransientConflict  Kind = "transient_conflict"
)

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrPollNotFound),
		errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrAlreadyVoted),
		errors.Is(err, ErrPollClosed):
		return KindConflict
	case errors.Is(err, ErrNotMember),
		errors.Is(err, ErrAdminAccessDenied),
		errors.Is(err, ErrNotPollAuthor):
		return KindForbidden
	case errors.Is(err, ErrLastAdmin):
		return KindInvariantViolation
	case errors.Is(err, ErrInvalidRequest):
		return KindValidation
	case errors.Is(err, ErrPollGroupMismatch),
		errors.Is(err, ErrOptionNotFound):
		return KindIntegrity
	case errors.Is(err, ErrTransientConflict):
		return KindTransientConflict
	default:
		return KindUnknown
	}
}

// Retryable reports whether the caller may safely repeat the operation.
func Retryable(err error) bool {
	return KindOf(err) == KindTransientConflict
}
