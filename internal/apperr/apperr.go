// Package apperr maps the error kinds spec.md §7 names at the HTTP
// boundary ("bad_request", "not_found", "unauthorized", "conflict",
// "rate_limited", "archive_gone", "index_unavailable", "download_failed",
// "internal") to status codes and a stable JSON error body, following
// the fmt.Errorf("pkgname: verb: %w", err) wrapping idiom used throughout
// this codebase for the underlying cause.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is one of spec.md §7's error kinds.
type Kind string

const (
	BadRequest       Kind = "bad_request"
	NotFound         Kind = "not_found"
	Unauthorized     Kind = "unauthorized"
	Conflict         Kind = "conflict"
	RateLimited      Kind = "rate_limited"
	ArchiveGone      Kind = "archive_gone"
	IndexUnavailable Kind = "index_unavailable"
	DownloadFailed   Kind = "download_failed"
	Internal         Kind = "internal"
)

var statusByKind = map[Kind]int{
	BadRequest:       http.StatusBadRequest,
	NotFound:         http.StatusNotFound,
	Unauthorized:     http.StatusUnauthorized,
	Conflict:         http.StatusConflict,
	RateLimited:      http.StatusTooManyRequests,
	ArchiveGone:      http.StatusNotFound,
	IndexUnavailable: http.StatusServiceUnavailable,
	DownloadFailed:   http.StatusBadGateway,
	Internal:         http.StatusInternalServerError,
}

// Error is an error tagged with one of spec.md §7's kinds, carrying
// the underlying cause for logging without leaking it to the client.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error of kind with message, no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of kind with message, wrapping cause so
// callers can still errors.Is/As through to it.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Status returns the HTTP status code for err, defaulting to 500 for
// errors that were never tagged with a Kind.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		if code, ok := statusByKind[e.Kind]; ok {
			return code
		}
	}
	return http.StatusInternalServerError
}

// KindOf returns err's Kind, defaulting to Internal for untagged
// errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ClientMessage returns the message safe to send to a client: the
// Error's own Message for a tagged error (never the wrapped cause,
// which may reference local paths or internals), or a generic string
// for anything else.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
