package sso

import (
	"fmt"
	"strings"
)

// ProviderType represents the identity provider protocol
type ProviderType string

const (
	ProviderTypeOAuth2 ProviderType = "oauth2"
	ProviderTypeOIDC   ProviderType = "oidc"
	ProviderTypeSAML   ProviderType = "saml"
)

// Preset names a well-known provider whose endpoints and attribute mapping are built in
type Preset string

const (
	PresetYandex Preset = "yandex"
	PresetGoogle Preset = "google"
)

// ProviderConfig is one entry of the providers file
type ProviderConfig struct {
	Name         string       `yaml:"name"`
	Type         ProviderType `yaml:"type"`
	Preset       Preset       `yaml:"preset,omitempty"`
	ClientID     string       `yaml:"client_id"`
	ClientSecret string       `yaml:"client_secret"`
	RedirectURL  string       `yaml:"redirect_url"`
	Scopes       []string     `yaml:"scopes,omitempty"`

	// OAuth2 endpoints
	AuthURL     string `yaml:"auth_url,omitempty"`
	TokenURL    string `yaml:"token_url,omitempty"`
	UserInfoURL string `yaml:"user_info_url,omitempty"`

	// OIDC discovery
	IssuerURL string `yaml:"issuer_url,omitempty"`

	SAML *SAMLConfig `yaml:"saml,omitempty"`

	AttributeMapping AttributeMap `yaml:"attribute_mapping,omitempty"`
}

// SAMLConfig describes the identity provider and this service provider for
// the SAML 2.0 web browser flow. The assertion consumer URL is RedirectURL.
type SAMLConfig struct {
	SSOURL      string `yaml:"sso_url"`
	EntityID    string `yaml:"entity_id"`
	Certificate string `yaml:"certificate"`

	// ServiceProviderIssuer is this service's entity id, also the expected audience
	ServiceProviderIssuer string `yaml:"sp_entity_id"`
	// SP key pair, only needed when SignRequests is set
	PrivateKey         string `yaml:"private_key,omitempty"`
	ServiceCertificate string `yaml:"sp_certificate,omitempty"`
	SignRequests       bool   `yaml:"sign_requests,omitempty"`
	NameIDFormat       string `yaml:"name_id_format,omitempty"`
}

// AttributeMap names the userinfo or id_token fields that carry each identity attribute
type AttributeMap struct {
	UserID      string `yaml:"user_id,omitempty"`
	Email       string `yaml:"email,omitempty"`
	DisplayName string `yaml:"display_name,omitempty"`
	FirstName   string `yaml:"first_name,omitempty"`
	LastName    string `yaml:"last_name,omitempty"`
}

// PresetConfig returns the built-in settings of a well-known provider
func PresetConfig(preset Preset) (ProviderConfig, error) {
	switch preset {
	case PresetYandex:
		return ProviderConfig{
			Name:        string(PresetYandex),
			Type:        ProviderTypeOAuth2,
			Preset:      PresetYandex,
			AuthURL:     "https://oauth.yandex.ru/authorize",
			TokenURL:    "https://oauth.yandex.ru/token",
			UserInfoURL: "https://login.yandex.ru/info?format=json",
			Scopes:      []string{"login:email", "login:info"},
			AttributeMapping: AttributeMap{
				UserID:      "psuid",
				Email:       "default_email",
				DisplayName: "display_name",
				FirstName:   "first_name",
				LastName:    "last_name",
			},
		}, nil
	case PresetGoogle:
		return ProviderConfig{
			Name:      string(PresetGoogle),
			Type:      ProviderTypeOIDC,
			Preset:    PresetGoogle,
			IssuerURL: "https://accounts.google.com",
			Scopes:    []string{"openid", "email", "profile"},
			AttributeMapping: AttributeMap{
				UserID:      "sub",
				Email:       "email",
				DisplayName: "name",
				FirstName:   "given_name",
				LastName:    "family_name",
			},
		}, nil
	default:
		return ProviderConfig{}, fmt.Errorf("unknown provider preset: %s", preset)
	}
}

// withPreset fills every unset field from the named preset
func (c ProviderConfig) withPreset() (ProviderConfig, error) {
	if c.Preset == "" {
		return c, nil
	}
	p, err := PresetConfig(c.Preset)
	if err != nil {
		return c, err
	}

	if c.Name == "" {
		c.Name = p.Name
	}
	if c.Type == "" {
		c.Type = p.Type
	}
	if len(c.Scopes) == 0 {
		c.Scopes = p.Scopes
	}
	c.AuthURL = firstNonEmpty(c.AuthURL, p.AuthURL)
	c.TokenURL = firstNonEmpty(c.TokenURL, p.TokenURL)
	c.UserInfoURL = firstNonEmpty(c.UserInfoURL, p.UserInfoURL)
	c.IssuerURL = firstNonEmpty(c.IssuerURL, p.IssuerURL)

	m := &c.AttributeMapping
	m.UserID = firstNonEmpty(m.UserID, p.AttributeMapping.UserID)
	m.Email = firstNonEmpty(m.Email, p.AttributeMapping.Email)
	m.DisplayName = firstNonEmpty(m.DisplayName, p.AttributeMapping.DisplayName)
	m.FirstName = firstNonEmpty(m.FirstName, p.AttributeMapping.FirstName)
	m.LastName = firstNonEmpty(m.LastName, p.AttributeMapping.LastName)
	return c, nil
}

// Validate checks the fields required by the provider type
func (c ProviderConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("provider %s: redirect_url is required", c.Name)
	}
	if c.AttributeMapping.Email == "" {
		return fmt.Errorf("provider %s: attribute_mapping needs email", c.Name)
	}

	switch c.Type {
	case ProviderTypeOAuth2, ProviderTypeOIDC:
		if err := c.validateClient(); err != nil {
			return err
		}
		if c.Type == ProviderTypeOIDC && c.IssuerURL == "" {
			return fmt.Errorf("provider %s: issuer_url is required", c.Name)
		}
		if c.Type == ProviderTypeOAuth2 && (c.AuthURL == "" || c.TokenURL == "" || c.UserInfoURL == "") {
			return fmt.Errorf("provider %s: auth_url, token_url and user_info_url are required", c.Name)
		}
	case ProviderTypeSAML:
		// user_id may be left unset; the assertion NameID is used then
		return c.SAML.validate(c.Name)
	default:
		return fmt.Errorf("provider %s: unsupported provider type %q", c.Name, c.Type)
	}
	return nil
}

func (c ProviderConfig) validateClient() error {
	if c.ClientID == "" {
		return fmt.Errorf("provider %s: client_id is required", c.Name)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("provider %s: client_secret is required", c.Name)
	}
	if c.AttributeMapping.UserID == "" {
		return fmt.Errorf("provider %s: attribute_mapping needs user_id", c.Name)
	}
	return nil
}

func (s *SAMLConfig) validate(name string) error {
	if s == nil {
		return fmt.Errorf("provider %s: saml settings are required", name)
	}
	if s.SSOURL == "" || s.EntityID == "" || s.Certificate == "" {
		return fmt.Errorf("provider %s: saml sso_url, entity_id and certificate are required", name)
	}
	if s.ServiceProviderIssuer == "" {
		return fmt.Errorf("provider %s: saml sp_entity_id is required", name)
	}
	if s.SignRequests && (s.PrivateKey == "" || s.ServiceCertificate == "") {
		return fmt.Errorf("provider %s: signed saml requests need private_key and sp_certificate", name)
	}
	return nil
}

// displayName prefers first_last, then the provider's display name
func (m AttributeMap) displayName(attrs map[string]interface{}) string {
	first := stringValue(attrs, m.FirstName)
	last := stringValue(attrs, m.LastName)
	if first != "" && last != "" {
		return first + "_" + last
	}
	if name := stringValue(attrs, m.DisplayName); name != "" {
		return name
	}
	return firstNonEmpty(first, last)
}

func stringValue(attrs map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	switch v := attrs[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
