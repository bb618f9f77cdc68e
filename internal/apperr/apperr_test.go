package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusMapsKnownKinds(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{BadRequest, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{Unauthorized, http.StatusUnauthorized},
		{Conflict, http.StatusConflict},
		{RateLimited, http.StatusTooManyRequests},
		{ArchiveGone, http.StatusNotFound},
		{IndexUnavailable, http.StatusServiceUnavailable},
		{DownloadFailed, http.StatusBadGateway},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := New(tt.kind, "boom")
		if got := Status(err); got != tt.want {
			t.Errorf("Status(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestStatusDefaultsToInternalForUntaggedError(t *testing.T) {
	if got := Status(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for untagged error, got %d", got)
	}
}

func TestWrapPreservesUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Internal, "write failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestClientMessageHidesCause(t *testing.T) {
	err := Wrap(NotFound, "archive not found", errors.New("/secret/path missing"))
	if msg := ClientMessage(err); msg != "archive not found" {
		t.Fatalf("ClientMessage = %q, want %q", msg, "archive not found")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != Internal {
		t.Fatal("expected Internal for untagged error")
	}
}
