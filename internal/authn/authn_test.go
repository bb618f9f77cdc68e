package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeStore struct {
	password string
}

func (f *fakeStore) HasPassword() bool            { return f.password != "" }
func (f *fakeStore) CheckPassword(pw string) bool { return f.password == "" || pw == f.password }

func TestRequireAuthAllowsWhenNoPasswordSet(t *testing.T) {
	handler := RequireAuth(&fakeStore{})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with no password set, got %d", rec.Code)
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	handler := RequireAuth(&fakeStore{password: "secret"})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with missing token, got %d", rec.Code)
	}
}

func TestRequireAuthRejectsWrongToken(t *testing.T) {
	handler := RequireAuth(&fakeStore{password: "secret"})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
}

func TestRequireAuthAllowsCorrectToken(t *testing.T) {
	handler := RequireAuth(&fakeStore{password: "secret"})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/manage/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct token, got %d", rec.Code)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
