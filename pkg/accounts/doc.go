// Package accounts implements the account lifecycle: registration, password
// and provider logins, refresh token rotation, logout and profile updates.
//
// Durable writes go through a Store whose InTx groups them into one
// transaction. Logout markers live in an Invalidations store with a TTL equal
// to the remaining lifetime of the logged out access token.
package accounts
