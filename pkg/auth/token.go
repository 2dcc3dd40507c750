package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed payload of a session token
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	// TokenType keeps access and refresh tokens from standing in for each other
	TokenType TokenType `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// TokenEncoder signs and verifies token envelopes
type TokenEncoder interface {
	Encode(claims *Claims) (string, error)
	Decode(token string) (*Claims, error)
}

// KeyDeriver produces the signing key for a subject
type KeyDeriver interface {
	DeriveKey(subject string) ([]byte, error)
}

// SHA256KeyDeriver derives hex(sha256(secret ++ subject)).
// Anyone holding the server secret and a user id can recompute the key.
type SHA256KeyDeriver struct {
	secret []byte
}

// NewSHA256KeyDeriver creates a deriver for the given server secret
func NewSHA256KeyDeriver(secret string) *SHA256KeyDeriver {
	return &SHA256KeyDeriver{secret: []byte(secret)}
}

// DeriveKey returns the signing key for subject
func (d *SHA256KeyDeriver) DeriveKey(subject string) ([]byte, error) {
	if subject == "" {
		return nil, ErrMissingSubject
	}
	material := make([]byte, 0, len(d.secret)+len(subject))
	material = append(material, d.secret...)
	material = append(material, subject...)
	sum := sha256.Sum256(material)
	return []byte(hex.EncodeToString(sum[:])), nil
}

// HMACEncoder is the HS256 TokenEncoder
type HMACEncoder struct {
	keys KeyDeriver
	now  func() time.Time
}

// EncoderOption configures an HMACEncoder
type EncoderOption func(*HMACEncoder)

// WithEncoderClock sets the clock used for claim validation
func WithEncoderClock(now func() time.Time) EncoderOption {
	return func(e *HMACEncoder) {
		e.now = now
	}
}

// NewHMACEncoder creates an encoder signing with keys from the deriver
func NewHMACEncoder(keys KeyDeriver, opts ...EncoderOption) *HMACEncoder {
	e := &HMACEncoder{
		keys: keys,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode signs claims. Claims without a user id return ErrMissingSubject.
func (e *HMACEncoder) Encode(claims *Claims) (string, error) {
	if claims == nil || claims.UserID == "" {
		return "", ErrMissingSubject
	}

	key, err := e.keys.DeriveKey(claims.UserID)
	if err != nil {
		return "", Wrap(KindInternal, "failed to derive signing key", err)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", Wrap(KindInternal, "failed to sign token", err)
	}
	return signed, nil
}

type tokenHeader struct {
	Alg string `json:"alg"`
}

// Decode verifies the envelope and returns its claims
func (e *HMACEncoder) Decode(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, NewError(KindTokenMalformed, "token must have three segments")
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, Wrap(KindTokenMalformed, "token header is not base64url", err)
	}
	var header tokenHeader
	if err := json.Unmarshal(raw, &header); err != nil || header.Alg == "" {
		return nil, NewError(KindTokenMalformed, "token header is not readable")
	}

	// The subject selects the key, so it is read before anything is verified.
	unverified := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, unverified); err != nil {
		return nil, Wrap(KindTokenInvalid, "token payload is not readable", err)
	}
	if unverified.UserID == "" {
		return nil, NewError(KindTokenInvalid, "token has no subject")
	}

	key, err := e.keys.DeriveKey(unverified.UserID)
	if err != nil {
		return nil, Wrap(KindInternal, "failed to derive signing key", err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(e.now),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	_, err = parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}
	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Wrap(KindTokenExpired, "token has expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return Wrap(KindTokenInvalid, "token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Wrap(KindTokenMalformed, "token is malformed", err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return Wrap(KindTokenInvalid, "token claims are invalid", err)
	default:
		return Wrap(KindInternal, "failed to verify token", err)
	}
}
