package media

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/twitchtv/twirp"
)

type Reason string

const (
	Unavailable  Reason = "unavailable"
	Unauthorized Reason = "unauthorized"
	NotFound     Reason = "not_found"
)

// Error is returned by every failed media server call.
type Error struct {
	Reason Reason
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("media %s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return Unavailable
}

func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Reason == NotFound
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	reason := Unavailable
	var terr twirp.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = Unavailable
	case errors.As(err, &terr):
		switch terr.Code() {
		case twirp.NotFound:
			reason = NotFound
		case twirp.Unauthenticated, twirp.PermissionDenied:
			reason = Unauthorized
		}
	}

	return &Error{Reason: reason, Op: op, Err: pkgerrors.Wrap(err, op)}
}
