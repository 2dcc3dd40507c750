package sso

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// OIDCProvider implements OpenID Connect. The identity comes from the verified
// id_token, so no userinfo request is made.
type OIDCProvider struct {
	config       ProviderConfig
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and creates a provider
func NewOIDCProvider(ctx context.Context, config ProviderConfig) (*OIDCProvider, error) {
	if config.Type != ProviderTypeOIDC {
		return nil, fmt.Errorf("provider %s is not an oidc provider", config.Name)
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", config.Name, err)
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	return &OIDCProvider{
		config:   config,
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
		},
	}, nil
}

// Name returns the provider name
func (p *OIDCProvider) Name() string {
	return p.config.Name
}

// AuthorizationURL returns the consent page URL
func (p *OIDCProvider) AuthorizationURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state), nil
}

// Exchange redeems the code and verifies the returned id_token. An email the
// issuer marks as unverified is refused.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (auth.ExternalIdentity, error) {
	if code == "" {
		return auth.ExternalIdentity{}, auth.Validationf("authorization code is required")
	}

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return auth.ExternalIdentity{}, exchangeError(ctx, "failed to exchange authorization code", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return auth.ExternalIdentity{}, auth.NewError(auth.KindInvalidCredentials, "identity provider returned no id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		if ctx.Err() != nil {
			return auth.ExternalIdentity{}, exchangeError(ctx, "failed to verify id_token", err)
		}
		return auth.ExternalIdentity{}, auth.Wrap(auth.KindInvalidCredentials, "id_token failed verification", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return auth.ExternalIdentity{}, auth.Wrap(auth.KindInternal, "failed to parse id_token claims", err)
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return auth.ExternalIdentity{}, auth.NewError(auth.KindInvalidCredentials, "identity provider has not verified the email")
	}

	return identityFrom(p.config.Name, p.config.AttributeMapping, claims)
}
