package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// OAuth2Provider implements the authorization code flow against a plain OAuth2
// server that exposes a userinfo endpoint
type OAuth2Provider struct {
	config       ProviderConfig
	oauth2Config *oauth2.Config
}

// NewOAuth2Provider creates a new OAuth2 provider
func NewOAuth2Provider(config ProviderConfig) (*OAuth2Provider, error) {
	if config.Type != ProviderTypeOAuth2 {
		return nil, fmt.Errorf("provider %s is not an oauth2 provider", config.Name)
	}

	oauth2Cfg := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  config.AuthURL,
			TokenURL: config.TokenURL,
		},
		RedirectURL: config.RedirectURL,
		Scopes:      config.Scopes,
	}

	return &OAuth2Provider{
		config:       config,
		oauth2Config: oauth2Cfg,
	}, nil
}

// Name returns the provider name
func (p *OAuth2Provider) Name() string {
	return p.config.Name
}

// AuthorizationURL returns the consent page URL
func (p *OAuth2Provider) AuthorizationURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state), nil
}

// Exchange redeems the code and reads the userinfo document with the issued token
func (p *OAuth2Provider) Exchange(ctx context.Context, code string) (auth.ExternalIdentity, error) {
	if code == "" {
		return auth.ExternalIdentity{}, auth.Validationf("authorization code is required")
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return auth.ExternalIdentity{}, exchangeError(ctx, "failed to exchange authorization code", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return auth.ExternalIdentity{}, auth.Wrap(auth.KindInternal, "failed to build user info request", err)
	}
	resp, err := p.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return auth.ExternalIdentity{}, exchangeError(ctx, "failed to fetch user info", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return auth.ExternalIdentity{}, auth.Wrap(auth.KindInvalidCredentials, "identity provider refused the user info request",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var userInfo map[string]interface{}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&userInfo); err != nil {
		return auth.ExternalIdentity{}, auth.Wrap(auth.KindInternal, "failed to decode user info", err)
	}

	return identityFrom(p.config.Name, p.config.AttributeMapping, userInfo)
}

// exchangeError classifies a failed provider round trip. A context error is
// passed through unchanged so the caller can tell a timeout from a rejection.
func exchangeError(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", msg, ctxErr)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return auth.Wrap(auth.KindInvalidCredentials, "identity provider rejected the authorization code", err)
	}
	return auth.Wrap(auth.KindInternal, msg, err)
}
