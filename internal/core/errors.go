package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide between retrying
// and asking the user to correct the request.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindExternalService ErrorKind = "external_service"
	KindInternal        ErrorKind = "internal"
)

// Error is the typed error returned by the service layer.
// Two errors match with errors.Is when their codes are equal.
type Error struct {
	Kind   ErrorKind
	Code   string
	Op     string
	Target string
	Err    error
}

var (
	ErrRecordNotFound = errors.New("record not found")

	ErrInvalidIntent         = &Error{Kind: KindValidation, Code: "InvalidIntent"}
	ErrInvalidRole           = &Error{Kind: KindValidation, Code: "InvalidRole"}
	ErrInvalidRoomName       = &Error{Kind: KindValidation, Code: "InvalidRoomName"}
	ErrInvalidSessionOptions = &Error{Kind: KindValidation, Code: "InvalidSessionOptions"}
	ErrInvalidProject        = &Error{Kind: KindValidation, Code: "InvalidProject"}
	ErrInvalidTrackID        = &Error{Kind: KindValidation, Code: "InvalidTrackId"}
	ErrInvalidDevice         = &Error{Kind: KindValidation, Code: "InvalidDevice"}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized, Code: "Unauthorized"}
	ErrProjectNotFound       = &Error{Kind: KindNotFound, Code: "ProjectNotFound"}
	ErrSessionNotFound       = &Error{Kind: KindNotFound, Code: "SessionNotFound"}
	ErrEgressNotFound        = &Error{Kind: KindNotFound, Code: "EgressNotFound"}
	ErrAPIKeyNotFound        = &Error{Kind: KindNotFound, Code: "ApiKeyNotFound"}
	ErrDeviceNotFound        = &Error{Kind: KindNotFound, Code: "DeviceNotFound"}
	ErrSessionStillActive    = &Error{Kind: KindConflict, Code: "SessionStillActive"}
	ErrProjectHasSessions    = &Error{Kind: KindConflict, Code: "ProjectHasActiveSessions"}
	ErrSessionNotStarted     = &Error{Kind: KindConflict, Code: "SessionNotStarted"}
	ErrRoomCreationFailed    = &Error{Kind: KindExternalService, Code: "RoomCreationFailed"}
	ErrRoomDeletionFailed    = &Error{Kind: KindExternalService, Code: "RoomDeletionFailed"}
	ErrEgressStartFailed     = &Error{Kind: KindExternalService, Code: "EgressStartFailed"}
	ErrEgressStopFailed      = &Error{Kind: KindExternalService, Code: "EgressStopFailed"}
	ErrMediaService          = &Error{Kind: KindExternalService, Code: "MediaServiceError"}
	ErrSessionPersistFailed  = &Error{Kind: KindInternal, Code: "SessionPersistFailed"}
)

func (e *Error) Error() string {
	msg := e.Code
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Target != "" {
		msg += fmt.Sprintf(" (%s)", e.Target)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// With returns a copy of the sentinel annotated with the failing operation,
// its target id and the underlying cause.
func (e *Error) With(op, target string, cause error) *Error {
	return &Error{
		Kind:   e.Kind,
		Code:   e.Code,
		Op:     op,
		Target: target,
		Err:    cause,
	}
}

// KindOf reports the kind of err, KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err or an empty string for untyped errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	return KindOf(err) == KindExternalService
}
