package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/httputil"
	"github.com/platinummonkey/authsvc/pkg/middleware"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	accounts AccountService
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(accounts AccountService) *AuthHandlers {
	return &AuthHandlers{accounts: accounts}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/register", h.register).Methods("POST")
	router.HandleFunc("/login", h.login).Methods("POST")
	router.HandleFunc("/token", h.token).Methods("POST")
	router.HandleFunc("/logout", h.logout).Methods("POST")
	router.HandleFunc("/refresh", h.refresh).Methods("POST")
	router.HandleFunc("/login-history", h.loginHistory).Methods("GET")
	router.HandleFunc("/update", h.update).Methods("PATCH")

	router.Handle("/me", middleware.RequireBearer(http.HandlerFunc(h.me))).Methods("GET")
}

// bearerOrError returns the bearer token, writing 400 when there is none
func bearerOrError(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		httputil.WriteAuthError(w, auth.Validationf("JWT Token is required."))
		return "", false
	}
	return token, true
}

// register handles POST /register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req auth.Registration
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	pair, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pair)
}

// login handles POST /login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req auth.Login
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	pair, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pair)
}

// token handles POST /token, the form-encoded password grant
func (h *AuthHandlers) token(w http.ResponseWriter, r *http.Request) {
	if !httputil.ParseFormOrError(w, r) {
		return
	}

	creds := auth.Credentials{
		Email:    r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	pair, err := h.accounts.LoginByCredentials(r.Context(), creds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pair)
}

// logout handles POST /logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerOrError(w, r)
	if !ok {
		return
	}

	if err := h.accounts.Logout(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteDetail(w, "Successfully logged out.")
}

// refresh handles POST /refresh. The bearer is the refresh token.
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerOrError(w, r)
	if !ok {
		return
	}

	pair, err := h.accounts.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pair)
}

// loginHistory handles GET /login-history
func (h *AuthHandlers) loginHistory(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerOrError(w, r)
	if !ok {
		return
	}

	history, err := h.accounts.LoginHistory(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, history)
}

// update handles PATCH /update. A wrong old password is a 400 here.
func (h *AuthHandlers) update(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerOrError(w, r)
	if !ok {
		return
	}

	var req auth.UserUpdate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := h.accounts.UpdateUser(r.Context(), token, req)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeErrorStatus(w, r, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteDetail(w, "User information updated successfully")
}

// me handles GET /me. Token failures are 401 here, unlike the other bearer routes.
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	info, err := h.accounts.UserInfo(r.Context(), middleware.GetToken(r))
	if auth.IsTokenError(err) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeErrorStatus(w, r, http.StatusUnauthorized, err)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, info)
}
