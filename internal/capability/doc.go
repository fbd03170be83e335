// Package capability mints and verifies short-lived connection tokens.
//
// A token is base64url(claims JSON) "." base64url(HMAC-SHA256(secret, claims segment)).
// The signature covers expiresAt, so an expired token cannot be extended without the secret.
// Verification never touches the database: authorization happens before a token is issued.
package capability
