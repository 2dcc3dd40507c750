// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteAccepted(w, pair)
//	httputil.WriteDetail(w, "Successfully logged out.")
//
// Errors from the account service carry a kind. WriteAuthError picks the status from it:
//
//	validation_error           400
//	conflict                   409
//	invalid_credentials        403
//	token_expired / _malformed / _invalid  403
//	forbidden                  403
//	not_found                  404
//	anything else              500, cause not exposed
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.RequestIDMiddleware(true),
//	)(router)
//
// RequestIDMiddleware rejects requests without X-Request-Id when required and records the
// id on an OpenTelemetry span.
package httputil
