// Package user carries the caller's user id through request contexts.
package user

import (
	"context"
	"net/http"
	"strings"

	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/clog"
)

// Header is the request header the upstream auth proxy fills in.
const Header = "X-User-ID"

type ctxKey struct{}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFromContext returns the user id or "" when the request carried none.
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Require returns the user id or an Unauthenticated error.
func Require(ctx context.Context) (string, error) {
	id := IDFromContext(ctx)
	if id == "" {
		return "", cerr.NewError(cerr.Unauthenticated, "missing "+Header+" header", nil)
	}
	clog.AddAttribute(ctx, "user_id", id)
	return id, nil
}

// Middleware copies the user header into the request context. Requests
// without it pass through; handlers that need a user call Require.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := WithID(r.Context(), id)
		clog.AddAttribute(ctx, "user_id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
