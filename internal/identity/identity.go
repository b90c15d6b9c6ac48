// Package identity resolves the acting caller of an operation from a bearer
// credential and carries it through request contexts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joescharf/fixit/internal/models"
	"github.com/joescharf/fixit/internal/store"
)

var (
	ErrNoSecret     = errors.New("jwt secret not configured")
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownUser  = errors.New("no user found for token")
)

// Identity is the resolved caller. Only UserID and Role are consumed downstream.
type Identity struct {
	UserID string
	Role   models.Role
}

// IsAdmin reports whether the identity holds the ADMIN role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == models.RoleAdmin
}

// FromUser builds the identity of a stored user.
func FromUser(u *models.User) *Identity {
	return &Identity{UserID: u.ID, Role: u.Role}
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}

// UserLookup loads users by id.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Resolver validates HS256 bearer tokens whose subject is a user id and loads
// the user's current role from the store.
type Resolver struct {
	secret []byte
	users  UserLookup
	now    func() time.Time
}

// NewResolver creates a resolver signing and verifying with secret.
func NewResolver(secret string, users UserLookup) *Resolver {
	return &Resolver{
		secret: []byte(secret),
		users:  users,
		now:    time.Now,
	}
}

// Resolve verifies token and returns the identity it names.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if len(r.secret) == 0 {
		return nil, ErrNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	u, err := r.users.GetUser(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("load token user: %w", err)
	}
	return FromUser(u), nil
}

// Issue mints a token for userID valid for ttl.
func (r *Resolver) Issue(userID string, ttl time.Duration) (string, error) {
	if len(r.secret) == 0 {
		return "", ErrNoSecret
	}
	now := r.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
