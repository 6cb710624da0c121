package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/httputil"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// Identity headers set by the fronting proxy after it has authenticated the session.
const (
	HeaderUserID  = "X-User-ID"
	HeaderTeamKey = "X-Team-Key"
)

type contextKey string

const (
	// ContextKeyUser is the key for storing the caller in request context.
	ContextKeyUser contextKey = "user"
)

// User is the authenticated caller.
type User struct {
	ID      uuid.UUID `json:"id"`
	TeamKey string    `json:"team_key,omitempty"`
}

// SystemUser acts for the server itself, e.g. auto-pick after an expiry.
var SystemUser = User{ID: uuid.Nil, TeamKey: "system"}

// IsSystem reports whether u is SystemUser.
func (u User) IsSystem() bool {
	return u == SystemUser
}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, u)
}

// UserFromContext returns the caller, or ErrUnauthenticated when there is none.
func UserFromContext(ctx context.Context) (User, error) {
	u, ok := ctx.Value(ContextKeyUser).(User)
	if !ok {
		return User{}, models.ErrUnauthenticated
	}
	return u, nil
}

// UserFromRequest reads the identity headers.
func UserFromRequest(r *http.Request) (User, bool, error) {
	raw := r.Header.Get(HeaderUserID)
	if raw == "" {
		return User{}, false, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return User{}, false, fmt.Errorf("%w: malformed %s header", models.ErrUnauthenticated, HeaderUserID)
	}
	return User{ID: id, TeamKey: r.Header.Get(HeaderTeamKey)}, true, nil
}

// Identify attaches the caller to the request context when identity headers are
// present. Anonymous requests pass through; handlers that need a caller use
// UserFromContext and answer 401 themselves.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok, err := UserFromRequest(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if ok {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}
