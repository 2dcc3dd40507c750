package sso

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// fakeIssuer is a minimal OpenID provider: discovery, JWKS and a token endpoint
// that hands out an id_token with the configured claims
type fakeIssuer struct {
	*httptest.Server
	key    *rsa.PrivateKey
	claims jwt.MapClaims
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                f.URL,
			"authorization_endpoint":                f.URL + "/authorize",
			"token_endpoint":                        f.URL + "/token",
			"jwks_uri":                              f.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test-key",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, f.claims)
		token.Header["kid"] = "test-key"
		signed, err := token.SignedString(f.key)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "provider-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     signed,
		})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeIssuer) provider(t *testing.T) *OIDCProvider {
	t.Helper()
	cfg, err := ProviderConfig{
		Name:         "google",
		Preset:       PresetGoogle,
		IssuerURL:    f.URL,
		ClientID:     "authsvc",
		ClientSecret: "secret",
		RedirectURL:  "https://auth.example.com/api/v1/oauth/redirect/google",
	}.withPreset()
	require.NoError(t, err)

	p, err := NewOIDCProvider(context.Background(), cfg)
	require.NoError(t, err)
	return p
}

func (f *fakeIssuer) validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            f.URL,
		"aud":            "authsvc",
		"sub":            "google-42",
		"email":          "ann@example.com",
		"email_verified": true,
		"name":           "Ann Lee",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}

func TestOIDCProvider_Exchange(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.claims = issuer.validClaims()
	p := issuer.provider(t)

	identity, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, auth.ExternalIdentity{
		Provider:       "google",
		ProviderUserID: "google-42",
		Email:          "ann@example.com",
		DisplayName:    "Ann Lee",
	}, identity)
}

func TestOIDCProvider_RejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"wrong audience", func(c jwt.MapClaims) { c["aud"] = "someone-else" }},
		{"expired", func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }},
		{"unverified email", func(c jwt.MapClaims) { c["email_verified"] = false }},
		{"no email", func(c jwt.MapClaims) { delete(c, "email") }},
	}

	issuer := newFakeIssuer(t)
	p := issuer.provider(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := issuer.validClaims()
			tt.mutate(claims)
			issuer.claims = claims

			_, err := p.Exchange(context.Background(), "code")
			assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		})
	}
}

func TestOIDCProvider_AuthorizationURL(t *testing.T) {
	issuer := newFakeIssuer(t)
	p := issuer.provider(t)

	url, err := p.AuthorizationURL("xyz")
	require.NoError(t, err)
	assert.Contains(t, url, issuer.URL+"/authorize?")
	assert.Contains(t, url, "state=xyz")
	assert.Contains(t, url, "scope=openid+email+profile")
}

func TestNewOIDCProvider_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewOIDCProvider(context.Background(), ProviderConfig{
		Name:      "broken",
		Type:      ProviderTypeOIDC,
		IssuerURL: srv.URL,
	})
	assert.Error(t, err)
}
