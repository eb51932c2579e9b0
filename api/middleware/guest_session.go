package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// GuestSessionHeader carries the anonymous cart session between requests.
const GuestSessionHeader = "X-Guest-Session"

const maxGuestSessionLen = 64

// GuestSession resolves the guest cart session from the request header,
// minting one when absent or malformed, and echoes it on the response.
func GuestSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := strings.TrimSpace(r.Header.Get(GuestSessionHeader))
			if !validGuestSession(session) {
				session = uuid.NewString()
			}
			w.Header().Set(GuestSessionHeader, session)

			ctx := WithGuestSession(r.Context(), session)
			if logg != nil {
				ctx = logg.WithField(ctx, "guest_session", session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validGuestSession keeps arbitrary client input out of redis key names.
func validGuestSession(session string) bool {
	if session == "" || len(session) > maxGuestSessionLen {
		return false
	}
	for _, c := range session {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
