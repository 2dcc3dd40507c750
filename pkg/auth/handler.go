package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token lifetimes
const (
	AccessTokenLifetime  = 15 * time.Minute
	RefreshTokenLifetime = 14400 * time.Minute
)

// TokenType tells access tokens from refresh tokens
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// RequireTokenType refuses claims of any other type as TokenInvalid
func RequireTokenType(claims *Claims, want TokenType) error {
	if claims == nil || claims.TokenType != want {
		return NewError(KindTokenInvalid, "Invalid token.")
	}
	return nil
}

// TokenHandler builds claim sets and token pairs on top of a TokenEncoder
type TokenHandler interface {
	BuildPair(user *User) (TokenPair, error)
	EncodeSingle(claims *Claims, lifetime time.Duration) (string, error)
	DecodeVerified(token string) (*Claims, error)
	SecondsUntilExpiry(claims *Claims) int64
}

// JWTHandler is the TokenHandler used by the service
type JWTHandler struct {
	encoder    TokenEncoder
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// HandlerOption configures a JWTHandler
type HandlerOption func(*JWTHandler)

// WithClock sets the clock used for issued-at and the liveness check
func WithClock(now func() time.Time) HandlerOption {
	return func(h *JWTHandler) {
		h.now = now
	}
}

// WithLifetimes overrides the access and refresh lifetimes. Zero keeps the default.
func WithLifetimes(access, refresh time.Duration) HandlerOption {
	return func(h *JWTHandler) {
		if access > 0 {
			h.accessTTL = access
		}
		if refresh > 0 {
			h.refreshTTL = refresh
		}
	}
}

// NewJWTHandler creates a handler over encoder
func NewJWTHandler(encoder TokenEncoder, opts ...HandlerOption) *JWTHandler {
	h := &JWTHandler{
		encoder:    encoder,
		now:        time.Now,
		accessTTL:  AccessTokenLifetime,
		refreshTTL: RefreshTokenLifetime,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AccessLifetime returns the configured access token lifetime
func (h *JWTHandler) AccessLifetime() time.Duration { return h.accessTTL }

// RefreshLifetime returns the configured refresh token lifetime
func (h *JWTHandler) RefreshLifetime() time.Duration { return h.refreshTTL }

// BuildPair issues an access token carrying the email and a refresh token without it.
// Each is stamped with its TokenType.
func (h *JWTHandler) BuildPair(user *User) (TokenPair, error) {
	if user == nil || user.ID == "" {
		return TokenPair{}, ErrMissingSubject
	}

	access, err := h.EncodeSingle(&Claims{UserID: user.ID, Email: user.Email, TokenType: TokenTypeAccess}, h.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := h.EncodeSingle(&Claims{UserID: user.ID, TokenType: TokenTypeRefresh}, h.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// EncodeSingle stamps issued-at, expiry and a token id, then encodes.
// The caller's claims are not modified.
func (h *JWTHandler) EncodeSingle(claims *Claims, lifetime time.Duration) (string, error) {
	if claims == nil || claims.UserID == "" {
		return "", ErrMissingSubject
	}

	issued := h.now()
	stamped := *claims
	stamped.IssuedAt = jwt.NewNumericDate(issued)
	stamped.ExpiresAt = jwt.NewNumericDate(issued.Add(lifetime))
	if stamped.ID == "" {
		stamped.ID = uuid.NewString()
	}
	return h.encoder.Encode(&stamped)
}

// DecodeVerified decodes token and rejects it when exp has passed on the handler clock
func (h *JWTHandler) DecodeVerified(token string) (*Claims, error) {
	claims, err := h.encoder.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return nil, NewError(KindTokenInvalid, "token has no expiry")
	}
	if claims.ExpiresAt.Time.Before(h.now()) {
		return nil, NewError(KindTokenExpired, "token has expired")
	}
	return claims, nil
}

// SecondsUntilExpiry returns whole seconds left before exp, negative once expired
func (h *JWTHandler) SecondsUntilExpiry(claims *Claims) int64 {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Unix() - h.now().Unix()
}
