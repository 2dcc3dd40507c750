package sso

import (
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// nameIDAttribute is the attribute key the assertion subject is exposed under
const nameIDAttribute = "NameID"

// SAMLProvider implements the SAML 2.0 web browser flow. The code handed to
// Exchange is the base64 SAMLResponse the identity provider posted back.
type SAMLProvider struct {
	config ProviderConfig
	sp     *saml2.SAMLServiceProvider
}

// NewSAMLProvider creates a new SAML provider
func NewSAMLProvider(config ProviderConfig) (*SAMLProvider, error) {
	if config.Type != ProviderTypeSAML {
		return nil, fmt.Errorf("provider %s is not a saml provider", config.Name)
	}
	if err := config.SAML.validate(config.Name); err != nil {
		return nil, err
	}
	s := config.SAML

	idpCert, err := parseCertificate(s.Certificate)
	if err != nil {
		return nil, fmt.Errorf("provider %s: idp certificate: %w", config.Name, err)
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      s.SSOURL,
		IdentityProviderIssuer:      s.EntityID,
		ServiceProviderIssuer:       s.ServiceProviderIssuer,
		AssertionConsumerServiceURL: config.RedirectURL,
		AudienceURI:                 s.ServiceProviderIssuer,
		SignAuthnRequests:           s.SignRequests,
		NameIdFormat:                s.NameIDFormat,
		IDPCertificateStore:         &dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{idpCert}},
	}

	if s.SignRequests {
		keyStore, err := parseKeyPair(s.ServiceCertificate, s.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("provider %s: sp key pair: %w", config.Name, err)
		}
		sp.SPKeyStore = keyStore
	}

	return &SAMLProvider{config: config, sp: sp}, nil
}

// Name returns the provider name
func (p *SAMLProvider) Name() string {
	return p.config.Name
}

// AuthorizationURL builds an AuthnRequest for the redirect binding. state
// travels as RelayState.
func (p *SAMLProvider) AuthorizationURL(state string) (string, error) {
	u, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return "", auth.Wrap(auth.KindInternal, "failed to build saml auth request", err)
	}
	return u, nil
}

// Exchange validates the signed response and maps its attributes
func (p *SAMLProvider) Exchange(ctx context.Context, code string) (auth.ExternalIdentity, error) {
	if code == "" {
		return auth.ExternalIdentity{}, auth.Validationf("SAMLResponse is required")
	}
	if err := ctx.Err(); err != nil {
		return auth.ExternalIdentity{}, err
	}

	info, err := p.sp.RetrieveAssertionInfo(code)
	if err != nil {
		return auth.ExternalIdentity{}, auth.Wrap(auth.KindInvalidCredentials, "identity provider response is not valid", err)
	}
	return p.identityFromAssertion(info)
}

// identityFromAssertion rejects expired or misaddressed assertions and maps
// the first value of every attribute. Without a user_id mapping the subject
// NameID identifies the user.
func (p *SAMLProvider) identityFromAssertion(info *saml2.AssertionInfo) (auth.ExternalIdentity, error) {
	if w := info.WarningInfo; w != nil {
		if w.InvalidTime {
			return auth.ExternalIdentity{}, auth.NewError(auth.KindInvalidCredentials, "saml assertion is outside its validity window")
		}
		if w.NotInAudience {
			return auth.ExternalIdentity{}, auth.NewError(auth.KindInvalidCredentials, "saml assertion is not addressed to this service")
		}
	}

	attrs := make(map[string]interface{}, len(info.Values)+1)
	for name, attr := range info.Values {
		if len(attr.Values) > 0 {
			attrs[name] = attr.Values[0].Value
		}
	}
	attrs[nameIDAttribute] = info.NameID

	m := p.config.AttributeMapping
	if m.UserID == "" {
		m.UserID = nameIDAttribute
	}
	return identityFrom(p.config.Name, m, attrs)
}

func parseCertificate(data string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	return x509.ParseCertificate(block.Bytes)
}

// parseKeyPair builds the signing key store from a PEM certificate and a
// PKCS#1 or PKCS#8 RSA key
func parseKeyPair(certPEM, keyPEM string) (dsig.X509KeyStore, error) {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	var key crypto.PrivateKey
	if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = rsaKey
	} else {
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	ks := dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	})
	return &ks, nil
}
