// Package auth provides session tokens, password hashing, and the shared domain types
// used by the authentication service.
//
// # Overview
//
// This package implements the cryptographic core of the service: signing and verifying
// JWT envelopes with a per-subject derived key, issuing access/refresh pairs, and hashing
// passwords. It also defines the error taxonomy every other package reports through.
//
// # Token Encoding
//
// Each token is signed with HS256 using a key derived from the server secret and the
// token subject:
//
//	encoder := auth.NewHMACEncoder(auth.NewSHA256KeyDeriver(secret))
//	token, err := encoder.Encode(&auth.Claims{UserID: user.ID})
//	claims, err := encoder.Decode(token)
//
// Decoding reads the subject from the unverified payload, derives the same key, and then
// verifies the signature. Failures are reported as distinct kinds:
//
//	KindTokenMalformed - not a three segment envelope or an unreadable header
//	KindTokenInvalid   - signature mismatch, unreadable payload, or missing subject
//	KindTokenExpired   - valid signature, expiry elapsed
//
// # Token Pairs
//
//	handler := auth.NewJWTHandler(encoder)
//	pair, err := handler.BuildPair(user)
//	// pair.AccessToken lives 15 minutes and carries the email
//	// pair.RefreshToken lives 10 days and carries only the subject
//
// DecodeVerified checks expiry again with the handler clock, so a fake clock in tests can
// expire a token the encoder still accepts.
//
// # Errors
//
//	if errors.Is(err, auth.ErrTokenExpired) { ... }
//	switch auth.KindOf(err) { ... }
//
// # Related Packages
//
//   - pkg/accounts: Session lifecycle built on these tokens
//   - pkg/rbac: Access predicates over User and Role
//   - pkg/httputil: Maps error kinds to HTTP statuses
package auth
