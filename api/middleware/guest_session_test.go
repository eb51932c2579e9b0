package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGuestSessionEchoesValidHeader(t *testing.T) {
	var seen string
	handler := GuestSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GuestSessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(GuestSessionHeader, "abc-123_x")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if seen != "abc-123_x" {
		t.Fatalf("expected session from header, got %q", seen)
	}
	if resp.Header().Get(GuestSessionHeader) != "abc-123_x" {
		t.Fatalf("expected session echoed")
	}
}

func TestGuestSessionMintsWhenMissingOrInvalid(t *testing.T) {
	for _, header := range []string{"", "has:colon", strings.Repeat("a", maxGuestSessionLen+1)} {
		var seen string
		handler := GuestSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GuestSessionFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(GuestSessionHeader, header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		if _, err := uuid.Parse(seen); err != nil {
			t.Fatalf("header %q: expected a minted uuid session, got %q", header, seen)
		}
		if resp.Header().Get(GuestSessionHeader) != seen {
			t.Fatalf("header %q: expected minted session echoed", header)
		}
	}
}
