package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/auth"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func echoBuyer(seen *uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = BuyerID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func issue(t *testing.T, user uuid.UUID) string {
	t.Helper()
	iss, err := auth.NewIssuer(testJWT)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	token, err := iss.Issue(user, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return token
}

func TestAuth(t *testing.T) {
	user := uuid.New()
	valid := issue(t, user)

	cases := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing", "", http.StatusUnauthorized, "missing credentials"},
		{"blank bearer", "Bearer   ", http.StatusUnauthorized, "missing credentials"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"valid", "Bearer " + valid, http.StatusNoContent, ""},
		{"lowercase scheme", "bearer " + valid, http.StatusNoContent, ""},
		{"bare token", valid, http.StatusNoContent, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen uuid.UUID
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp := httptest.NewRecorder()
			Auth(testJWT, nil)(echoBuyer(&seen)).ServeHTTP(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
			if tc.status == http.StatusNoContent {
				if seen != user {
					t.Fatalf("expected buyer %s in context, got %s", user, seen)
				}
				return
			}
			var body types.ErrorEnvelope
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Message != tc.message {
				t.Fatalf("expected %q got %q", tc.message, body.Error.Message)
			}
		})
	}
}

func TestAuthReportsExpiredTokens(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWT.Issuer,
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
	}).SignedString([]byte(testJWT.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	resp := httptest.NewRecorder()
	var seen uuid.UUID
	Auth(testJWT, nil)(echoBuyer(&seen)).ServeHTTP(resp, req)

	var body types.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != http.StatusUnauthorized || body.Error.Message != "token expired" {
		t.Fatalf("expected 401 token expired, got %d %q", resp.Code, body.Error.Message)
	}
}

func TestAuthWithoutKeyIsServerError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, uuid.New()))
	resp := httptest.NewRecorder()
	var seen uuid.UUID
	Auth(config.JWTConfig{Issuer: "issuer"}, nil)(echoBuyer(&seen)).ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestBuyerIDParsesContext(t *testing.T) {
	id := uuid.New()
	if got := BuyerID(WithUserID(t.Context(), id.String())); got != id {
		t.Fatalf("expected %s got %s", id, got)
	}
	if got := BuyerID(WithUserID(t.Context(), "garbage")); got != uuid.Nil {
		t.Fatalf("expected nil id for garbage, got %s", got)
	}
}
