package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/fixit/internal/models"
	"github.com/joescharf/fixit/internal/store"
)

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
}

func TestResolver_RoundTrip(t *testing.T) {
	users := fakeUsers{"u1": {ID: "u1", Role: models.RoleAdmin}}
	r := NewResolver("secret", users)

	tok, err := r.Issue("u1", time.Hour)
	require.NoError(t, err)

	id, err := r.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, models.RoleAdmin, id.Role)
	assert.True(t, id.IsAdmin())
}

func TestResolver_RoleComesFromStore(t *testing.T) {
	users := fakeUsers{"u1": {ID: "u1", Role: models.RoleAdmin}}
	r := NewResolver("secret", users)
	tok, err := r.Issue("u1", time.Hour)
	require.NoError(t, err)

	users["u1"] = &models.User{ID: "u1", Role: models.RoleUser}
	id, err := r.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.False(t, id.IsAdmin())
}

func TestResolver_Rejects(t *testing.T) {
	users := fakeUsers{"u1": {ID: "u1", Role: models.RoleUser}}
	r := NewResolver("secret", users)
	ctx := context.Background()

	t.Run("wrong secret", func(t *testing.T) {
		other := NewResolver("other", users)
		tok, err := other.Issue("u1", time.Hour)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		tok, err := r.Issue("u1", -time.Minute)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown user", func(t *testing.T) {
		tok, err := r.Issue("ghost", time.Hour)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, tok)
		assert.ErrorIs(t, err, ErrUnknownUser)
	})

	t.Run("missing expiry", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = r.Resolve(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := r.Resolve(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no secret", func(t *testing.T) {
		_, err := NewResolver("", users).Resolve(ctx, "x")
		assert.ErrorIs(t, err, ErrNoSecret)
	})
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = BearerToken("bearer   xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)

	_, ok = BearerToken("Bearer")
	assert.False(t, ok)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	_, ok := FromContext(ctx)
	assert.False(t, ok)

	ctx = WithIdentity(ctx, &Identity{UserID: "u1", Role: models.RoleUser})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", id.UserID)
}
