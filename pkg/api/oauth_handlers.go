package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/authsvc/pkg/httputil"
	"github.com/platinummonkey/authsvc/pkg/sso"
)

// OAuthHandlers handles logins through external identity providers
type OAuthHandlers struct {
	accounts  AccountService
	providers ProviderDirectory
}

// NewOAuthHandlers creates the provider login handlers
func NewOAuthHandlers(accounts AccountService, providers ProviderDirectory) *OAuthHandlers {
	return &OAuthHandlers{accounts: accounts, providers: providers}
}

// RegisterRoutes registers provider routes
func (h *OAuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/providers", h.listProviders).Methods("GET")
	router.HandleFunc("/login/{provider}", h.providerLogin).Methods("POST")
	router.HandleFunc("/redirect/{provider}", h.providerRedirect).Methods("GET")
	router.HandleFunc("/redirect/{provider}", h.providerPost).Methods("POST")
}

// listProviders handles GET /providers
func (h *OAuthHandlers) listProviders(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, ProvidersResponse{Providers: h.providers.Names()})
}

// providerLogin handles POST /login/{provider} and returns where to send the user
func (h *OAuthHandlers) providerLogin(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "provider")
	if !ok {
		return
	}

	url, err := h.providers.AuthorizationURL(name, uuid.NewString())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, AuthorizationURLResponse{Provider: name, AuthorizationURL: url})
}

// providerRedirect handles GET /redirect/{provider}?code=...
func (h *OAuthHandlers) providerRedirect(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "provider")
	if !ok {
		return
	}
	code := httputil.ParseQueryString(r, "code", "")
	if !httputil.RequireNonEmpty(w, code, "code") {
		return
	}
	h.loginByProvider(w, r, name, code)
}

// providerPost handles the SAML POST binding: the identity provider posts a
// form carrying SAMLResponse to the same redirect URL
func (h *OAuthHandlers) providerPost(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "provider")
	if !ok {
		return
	}
	if !httputil.ParseFormOrError(w, r) {
		return
	}
	response := r.PostForm.Get("SAMLResponse")
	if !httputil.RequireNonEmpty(w, response, "SAMLResponse") {
		return
	}
	h.loginByProvider(w, r, name, response)
}

func (h *OAuthHandlers) loginByProvider(w http.ResponseWriter, r *http.Request, name, code string) {
	pair, err := h.accounts.LoginByProvider(r.Context(), name, code, r.UserAgent())
	if errors.Is(err, sso.ErrExchangeTimeout) {
		writeErrorStatus(w, r, http.StatusGatewayTimeout, err)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteAccepted(w, pair)
}
