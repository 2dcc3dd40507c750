package sso

import (
	"context"
	"fmt"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// IdentityProvider turns an authorization code into a vouched-for identity
type IdentityProvider interface {
	// Name is the path segment the provider is addressed by
	Name() string

	// AuthorizationURL is where the user agent is sent to sign in
	AuthorizationURL(state string) (string, error)

	// Exchange redeems code and returns the identity behind it
	Exchange(ctx context.Context, code string) (auth.ExternalIdentity, error)
}

// NewProvider builds a provider from configuration. OIDC providers run
// discovery against the issuer, so ctx bounds that request.
func NewProvider(ctx context.Context, cfg ProviderConfig) (IdentityProvider, error) {
	cfg, err := cfg.withPreset()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case ProviderTypeOAuth2:
		return NewOAuth2Provider(cfg)
	case ProviderTypeOIDC:
		return NewOIDCProvider(ctx, cfg)
	case ProviderTypeSAML:
		return NewSAMLProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}

// identityFrom maps provider attributes onto an identity. The provider user id
// and the email are required; without them the login cannot be resolved.
func identityFrom(provider string, m AttributeMap, attrs map[string]interface{}) (auth.ExternalIdentity, error) {
	id := auth.ExternalIdentity{
		Provider:       provider,
		ProviderUserID: stringValue(attrs, m.UserID),
		Email:          stringValue(attrs, m.Email),
		DisplayName:    m.displayName(attrs),
	}
	if id.ProviderUserID == "" {
		return auth.ExternalIdentity{}, auth.NewError(auth.KindInvalidCredentials, "identity provider returned no user id")
	}
	if id.Email == "" {
		return auth.ExternalIdentity{}, auth.NewError(auth.KindInvalidCredentials, "identity provider returned no email")
	}
	return id, nil
}
