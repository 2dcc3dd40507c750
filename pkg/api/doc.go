// Package api provides the HTTP REST API of the authentication service.
//
// # Overview
//
// The API is built on gorilla/mux and organized into handler groups:
//
//   - Auth (/api/v1/auth): register, login, token, logout, refresh,
//     login-history, update, me
//   - OAuth (/api/v1/oauth): provider list, authorization URL, code redirect
//   - Roles (/api/v1/roles, /api/v1/user_roles): role catalogue and role
//     assignment behind the access checks of package rbac
//
// # Usage
//
//	srv := api.NewServer(accounts, registry, roleStore)
//	handler := srv.Handler(api.StackOptions{
//		Logger:           logger,
//		RateLimiter:      limiter,
//		RequireRequestID: true,
//	})
//	http.ListenAndServe(":8000", handler)
//
// # Errors
//
// Handlers never build error bodies themselves. Service errors carry an
// auth.Kind and are written by httputil.WriteAuthError:
//
//	{"error": "Invalid token.", "kind": "token_invalid"}
//
// Internal errors are logged with the request logger and answered with a
// generic message. A wrong old password on PATCH /update and a missing bearer
// token are answered with 400; an identity provider that does not answer in
// time gives 504.
package api
