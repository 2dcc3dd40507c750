// Package audit records security-relevant authentication events.
//
// The account service reports registrations, logins (including failed ones),
// logouts, refreshes and profile changes through a Logger. StructuredLogger
// writes them to the service log with audit=true; NoopLogger discards them.
//
//	logger := audit.NewStructuredLogger(observability.NewLogger(observability.InfoLevel, os.Stdout))
//	logger.LogAuthentication(ctx, audit.EventTypeAuthLogin, user.ID, user.Email,
//		audit.EventStatusSuccess, "user logged in")
//
// Events carry the request id from the context when one is present. Audit
// delivery never fails the audited operation; callers log and continue.
package audit
