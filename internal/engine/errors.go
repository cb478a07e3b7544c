package engine

import (
	"errors"
	"fmt"

	"momtrack/internal/repo"
)

// Kind classifies engine failures for callers. Every rejected precondition
// carries exactly one kind plus a message naming the offending field or the
// expected-vs-actual state.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindInvalidArgument
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func notFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func invalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func invalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

// wrapNotFound converts the repo sentinel into a typed NotFound error; other
// errors pass through unchanged.
func wrapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(format, args...)
	}
	return err
}
