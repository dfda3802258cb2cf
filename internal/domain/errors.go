package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorises a relay failure so the command surface can map it to a reply.
type ErrorKind string

const (
	KindInvalidAuthor  ErrorKind = "invalid_author"
	KindUnknownAuthor  ErrorKind = "unknown_author"
	KindNoActiveStream ErrorKind = "no_active_stream"
	KindNotFollowing   ErrorKind = "not_following"
	KindUpstream       ErrorKind = "upstream_call"
	KindDownstream     ErrorKind = "downstream_post"
	KindInternal       ErrorKind = "internal"
)

// Error is a relay error with a kind, the operation that failed and an optional subject
// (usually the author's screen name).
type Error struct {
	Kind    ErrorKind
	Op      string
	Subject string
	Cause   error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidAuthor  = &Error{Kind: KindInvalidAuthor}
	ErrUnknownAuthor  = &Error{Kind: KindUnknownAuthor}
	ErrNoActiveStream = &Error{Kind: KindNoActiveStream}
	ErrNotFollowing   = &Error{Kind: KindNotFollowing}
	ErrUpstream       = &Error{Kind: KindUpstream}
	ErrDownstream     = &Error{Kind: KindDownstream}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidAuthor:
		return fmt.Sprintf("invalid username %q", e.Subject)
	case KindUnknownAuthor:
		return fmt.Sprintf("user @%s not found", e.Subject)
	case KindNoActiveStream:
		return "no active stream, follow someone first"
	case KindNotFollowing:
		return fmt.Sprintf("not following @%s", e.Subject)
	}

	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func InvalidAuthorError(username string) *Error {
	return &Error{Kind: KindInvalidAuthor, Op: "validate", Subject: username}
}

func UnknownAuthorError(username string) *Error {
	return &Error{Kind: KindUnknownAuthor, Op: "resolve author", Subject: username}
}

func NotFollowingError(username string) *Error {
	return &Error{Kind: KindNotFollowing, Op: "unfollow", Subject: username}
}

func NoActiveStreamError() *Error {
	return &Error{Kind: KindNoActiveStream, Op: "unfollow"}
}

// UpstreamError wraps a streaming-platform failure. Errors that already carry a kind
// are returned unchanged.
func UpstreamError(op string, cause error) error {
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return &Error{Kind: KindUpstream, Op: op, Cause: cause}
}

// DownstreamError wraps a chat-platform failure. Errors that already carry a kind are
// returned unchanged.
func DownstreamError(op string, cause error) error {
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return &Error{Kind: KindDownstream, Op: op, Cause: cause}
}
