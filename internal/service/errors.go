package service

import "errors"

// Sentinel errors the transport layer maps onto HTTP status codes. The codec
// folds every parse failure (bad signature, wrong type, malformed, expired
// signature window) into ErrInvalidToken; revocation and store-side expiry
// keep their own kinds so the caller can tell a rotation race from a stale
// cookie.
var (
	ErrDuplicateUser        = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrRoleMismatch         = errors.New("account exists with a different role")
	ErrOAuthAccountRequired = errors.New("account has no password, use oauth login")
	ErrEmailNotVerified     = errors.New("provider email is not verified")
	ErrIncompleteProfile    = errors.New("provider profile is missing email or name")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrTokenExpired         = errors.New("token expired")
	ErrUserNotFound         = errors.New("user not found")
	ErrOAuthProvider        = errors.New("oauth provider error")
)
