package auth

import (
	"context"
	"errors"
	"strings"
)

// AccountRoles loads the stored role for an account. Implemented by the
// accounts service; kept narrow so this package stays free of storage
// concerns.
type AccountRoles interface {
	RoleOf(ctx context.Context, accountID string) (string, error)
}

// Resolver turns an opaque bearer credential into an account identity.
type Resolver struct {
	tokens   *Tokens
	accounts AccountRoles
}

// NewResolver wires token verification to the account registry.
func NewResolver(tokens *Tokens, accounts AccountRoles) (*Resolver, error) {
	if tokens == nil {
		return nil, errors.New("auth: tokens are required")
	}
	if accounts == nil {
		return nil, errors.New("auth: account source is required")
	}
	return &Resolver{tokens: tokens, accounts: accounts}, nil
}

// ResolveIdentity derives the account id from a credential. A malformed or
// absent credential resolves to no identity; the caller must then deny the
// operation as unauthenticated.
func (r *Resolver) ResolveIdentity(credential string) (string, bool) {
	claims, err := r.tokens.Verify(credential)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// IsAdmin loads the account record and reports whether its role is admin.
// Fails closed when the account cannot be loaded.
func (r *Resolver) IsAdmin(ctx context.Context, accountID string) bool {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return false
	}
	role, err := r.accounts.RoleOf(ctx, accountID)
	if err != nil {
		return false
	}
	return strings.EqualFold(role, "admin")
}
