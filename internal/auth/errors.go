package auth

import "errors"

var (
	// ErrInvalidToken indicates the credential failed verification; callers
	// treat it as "unauthenticated", distinct from "forbidden".
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrUnauthorized = errors.New("auth: unauthorized")
)
