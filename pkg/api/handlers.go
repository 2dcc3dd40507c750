package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/httputil"
	"github.com/platinummonkey/authsvc/pkg/observability"
)

// Server represents our API server
type Server struct {
	router        *mux.Router
	authHandlers  *AuthHandlers
	oauthHandlers *OAuthHandlers
	roleHandlers  *RoleHandlers
}

// NewServer creates a new API server. providers and roles may be nil, in
// which case their routes are not registered.
func NewServer(accounts AccountService, providers ProviderDirectory, roles RoleAdmin) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		authHandlers: NewAuthHandlers(accounts),
	}
	if providers != nil {
		s.oauthHandlers = NewOAuthHandlers(accounts, providers)
	}
	if roles != nil {
		s.roleHandlers = NewRoleHandlers(accounts, roles)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.authHandlers.RegisterRoutes(s.router.PathPrefix("/api/v1/auth").Subrouter())

	if s.oauthHandlers != nil {
		s.oauthHandlers.RegisterRoutes(s.router.PathPrefix("/api/v1/oauth").Subrouter())
	}

	if s.roleHandlers != nil {
		s.roleHandlers.RegisterRoutes(s.router.PathPrefix("/api/v1").Subrouter())
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// writeError logs internal failures with the request logger and writes err
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, httputil.StatusForKind(auth.KindOf(err)), err)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
	}
	httputil.WriteAuthErrorStatus(w, status, err)
}
