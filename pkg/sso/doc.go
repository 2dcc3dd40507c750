// Package sso signs users in through external identity providers.
//
// A provider turns an authorization code into an auth.ExternalIdentity
// (provider user id, verified email, display name). The account service then
// resolves or creates the local user; this package never touches storage.
//
// Supported protocols:
//
//	oauth2  authorization code flow plus a userinfo request (Yandex preset)
//	oidc    discovery plus id_token verification (Google preset)
//	saml    redirect binding out, POST binding back; the SAMLResponse is the code
//
// Providers are listed in a YAML file:
//
//	providers:
//	  - preset: yandex
//	    client_id: ${YANDEX_CLIENT_ID}
//	    client_secret: ${YANDEX_CLIENT_SECRET}
//	    redirect_url: https://auth.example.com/api/v1/oauth/redirect/yandex
//	  - name: corp
//	    type: oidc
//	    issuer_url: https://sso.example.com
//	    client_id: authsvc
//	    client_secret: ${CORP_SECRET}
//	    redirect_url: https://auth.example.com/api/v1/oauth/redirect/corp
//	    attribute_mapping:
//	      user_id: sub
//	      email: email
//	      display_name: preferred_username
//	  - name: okta
//	    type: saml
//	    redirect_url: https://auth.example.com/api/v1/oauth/redirect/okta
//	    saml:
//	      sso_url: https://example.okta.com/app/sso/saml
//	      entity_id: http://www.okta.com/exk1
//	      certificate: ${OKTA_SIGNING_CERT}
//	      sp_entity_id: https://auth.example.com
//	    attribute_mapping:
//	      email: email
//
// Registry.Exchange bounds every exchange; a provider that runs out of time
// yields an error matching ErrExchangeTimeout.
package sso
