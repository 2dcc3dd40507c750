package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutableClock struct {
	now time.Time
}

func (c *mutableClock) Now() time.Time { return c.now }

func (c *mutableClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestHandler(clock *mutableClock) *JWTHandler {
	return NewJWTHandler(newTestEncoder(clock.Now), WithClock(clock.Now))
}

func TestJWTHandler_BuildPair(t *testing.T) {
	clock := &mutableClock{now: time.Now().Truncate(time.Second)}
	h := newTestHandler(clock)

	pair, err := h.BuildPair(&User{ID: "user-1", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := h.DecodeVerified(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.UserID)
	assert.Equal(t, "alice@example.com", access.Email)
	assert.Equal(t, TokenTypeAccess, access.TokenType)
	assert.Equal(t, clock.now.Unix(), access.IssuedAt.Unix())
	assert.Equal(t, clock.now.Add(15*time.Minute).Unix(), access.ExpiresAt.Unix())

	refresh, err := h.DecodeVerified(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refresh.UserID)
	assert.Empty(t, refresh.Email)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
	assert.Equal(t, int64(864000), refresh.ExpiresAt.Unix()-refresh.IssuedAt.Unix())
}

func TestJWTHandler_PairsDifferWithinSameSecond(t *testing.T) {
	clock := &mutableClock{now: time.Now()}
	h := newTestHandler(clock)
	user := &User{ID: "user-1", Email: "alice@example.com"}

	first, err := h.BuildPair(user)
	require.NoError(t, err)
	second, err := h.BuildPair(user)
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestJWTHandler_BuildPairRequiresID(t *testing.T) {
	h := newTestHandler(&mutableClock{now: time.Now()})

	_, err := h.BuildPair(&User{Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, err = h.BuildPair(nil)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestJWTHandler_EncodeSingleDoesNotMutate(t *testing.T) {
	h := newTestHandler(&mutableClock{now: time.Now()})
	claims := &Claims{UserID: "user-1"}

	_, err := h.EncodeSingle(claims, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
	assert.Empty(t, claims.ID)
}

func TestJWTHandler_DecodeVerifiedExpiresOnHandlerClock(t *testing.T) {
	issued := time.Now()
	encoderClock := &mutableClock{now: issued}
	handlerClock := &mutableClock{now: issued}
	h := NewJWTHandler(newTestEncoder(encoderClock.Now), WithClock(handlerClock.Now))

	token, err := h.EncodeSingle(&Claims{UserID: "user-1"}, time.Minute)
	require.NoError(t, err)

	// The encoder still sees a live token, the handler does not.
	handlerClock.Advance(2 * time.Minute)
	_, err = h.encoder.Decode(token)
	require.NoError(t, err)

	_, err = h.DecodeVerified(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTHandler_DecodeVerifiedPastExpiry(t *testing.T) {
	clock := &mutableClock{now: time.Now()}
	h := newTestHandler(clock)

	token, err := h.EncodeSingle(&Claims{UserID: "user-1"}, -time.Second)
	require.NoError(t, err)

	claims, err := h.DecodeVerified(token)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTHandler_SecondsUntilExpiry(t *testing.T) {
	clock := &mutableClock{now: time.Unix(1_700_000_000, 0)}
	h := newTestHandler(clock)

	token, err := h.EncodeSingle(&Claims{UserID: "user-1"}, 15*time.Minute)
	require.NoError(t, err)
	claims, err := h.DecodeVerified(token)
	require.NoError(t, err)

	assert.Equal(t, int64(900), h.SecondsUntilExpiry(claims))

	clock.Advance(14 * time.Minute)
	assert.Equal(t, int64(60), h.SecondsUntilExpiry(claims))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, int64(-60), h.SecondsUntilExpiry(claims))

	assert.Equal(t, int64(0), h.SecondsUntilExpiry(nil))
}

func TestJWTHandler_WithLifetimes(t *testing.T) {
	clock := &mutableClock{now: time.Unix(1_700_000_000, 0)}
	h := NewJWTHandler(newTestEncoder(clock.Now), WithClock(clock.Now), WithLifetimes(time.Minute, 0))

	assert.Equal(t, time.Minute, h.AccessLifetime())
	assert.Equal(t, RefreshTokenLifetime, h.RefreshLifetime())
}

func TestRequireTokenType(t *testing.T) {
	assert.NoError(t, RequireTokenType(&Claims{UserID: "user-1", TokenType: TokenTypeAccess}, TokenTypeAccess))

	for name, claims := range map[string]*Claims{
		"other type": {UserID: "user-1", TokenType: TokenTypeRefresh},
		"untyped":    {UserID: "user-1"},
		"nil":        nil,
	} {
		t.Run(name, func(t *testing.T) {
			err := RequireTokenType(claims, TokenTypeAccess)
			assert.Equal(t, KindTokenInvalid, KindOf(err))
		})
	}
}
