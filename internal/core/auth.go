package core

import (
	"context"
	"slices"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// Capability names an action a caller may be granted per restaurant.
type Capability string

const (
	CapImport    Capability = "catalog:import"
	CapSync      Capability = "catalog:sync"
	CapConfigure Capability = "catalog:configure"
	CapView      Capability = "catalog:view"
)

// Wildcard grants every restaurant or every capability.
const Wildcard = "*"

// Principal is the authenticated caller.
type Principal struct {
	UserID       string
	Restaurants  []string
	Capabilities []Capability
}

// Authorizer answers whether a principal may act on a restaurant.
type Authorizer interface {
	Allowed(ctx context.Context, p Principal, restaurantID string, c Capability) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, p Principal, restaurantID string, c Capability) bool

func (f AuthorizerFunc) Allowed(ctx context.Context, p Principal, restaurantID string, c Capability) bool {
	return f(ctx, p, restaurantID, c)
}

// CapabilityAuthorizer grants what the principal's own claims list.
type CapabilityAuthorizer struct{}

func (CapabilityAuthorizer) Allowed(_ context.Context, p Principal, restaurantID string, c Capability) bool {
	if !slices.Contains(p.Restaurants, Wildcard) && !slices.Contains(p.Restaurants, restaurantID) {
		return false
	}
	return slices.Contains(p.Capabilities, Wildcard) || slices.Contains(p.Capabilities, c)
}

// SystemPrincipal is used when authentication is disabled.
func SystemPrincipal() Principal {
	return Principal{
		UserID:       "system",
		Restaurants:  []string{Wildcard},
		Capabilities: []Capability{Wildcard},
	}
}

// authorize returns the caller when it holds c for restaurantID.
func (s *Service) authorize(ctx context.Context, op, restaurantID string, c Capability) (Principal, error) {
	if restaurantID == "" {
		return Principal{}, catalog.Errorf(catalog.ErrValidation, op, "restaurant id is required")
	}
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, catalog.Errorf(catalog.ErrAuthorization, op, "no authenticated caller")
	}
	if !s.auth.Allowed(ctx, p, restaurantID, c) {
		return Principal{}, catalog.Errorf(catalog.ErrAuthorization, op,
			"user %q lacks %s on restaurant %q", p.UserID, c, restaurantID)
	}
	return p, nil
}
