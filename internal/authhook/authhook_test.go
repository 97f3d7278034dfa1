package authhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sunflowerdeath/sinkron/internal/wire"
)

func TestAuthenticateWithoutURLIsAnonymous(t *testing.T) {
	h := New("")
	userId, err := h.Authenticate(context.Background(), "any-token")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if userId != "anonymous" {
		t.Fatalf("userId = %q, want anonymous", userId)
	}
}

func TestAuthenticateReturnsUserIdOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/auth/") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("user-42\n"))
	}))
	defer srv.Close()

	h := New(srv.URL + "/auth/")
	userId, err := h.Authenticate(context.Background(), "tok123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if userId != "user-42" {
		t.Fatalf("userId = %q, want user-42", userId)
	}
}

func TestAuthenticateFailsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := New(srv.URL + "/auth/")
	_, err := h.Authenticate(context.Background(), "bad-token")
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
	if err.Code != wire.CodeAuthFailed {
		t.Fatalf("err.Code = %s, want auth_failed", err.Code)
	}
}

func TestAuthenticateFailsOnEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("   "))
	}))
	defer srv.Close()

	h := New(srv.URL + "/auth/")
	_, err := h.Authenticate(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected an error for an empty user id")
	}
}
