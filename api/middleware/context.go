package middleware

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxGuestSession
	ctxRequestID
)

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

// RequestIDFromContext returns the id RequestID assigned, or "".
func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxRequestID) }

func withRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, ctxRequestID, id)
}

// UserIDFromContext returns the raw user id Auth stored, or "".
func UserIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxUserID) }

// WithUserID marks ctx as authenticated for userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, ctxUserID, userID)
}

// BuyerID parses the authenticated user id. uuid.Nil means anonymous.
func BuyerID(ctx context.Context) uuid.UUID {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// GuestSessionFromContext returns the session GuestSession resolved, or "".
func GuestSessionFromContext(ctx context.Context) string { return stringValue(ctx, ctxGuestSession) }

func WithGuestSession(ctx context.Context, session string) context.Context {
	return withValue(ctx, ctxGuestSession, session)
}
