// internal/common/auth/authorize.go
package auth

import (
	"context"
	"fmt"

	"lending-workers/internal/common/errors"
)

// Realm role names checked before sensitive lending operations.
const (
	RoleCreditReviewer = "credit-reviewer"
	RoleLoanOfficer    = "loan-officer"
	RoleFieldCollector = "field-collector"
)

// Authorizer answers whether an actor may perform a lending operation.
type Authorizer interface {
	CanReview(ctx context.Context, actorID string) error
	CanOriginate(ctx context.Context, actorID string) error
	CanCollect(ctx context.Context, actorID string) error
}

// KeycloakAuthorizer checks realm roles via the Keycloak admin API.
type KeycloakAuthorizer struct {
	client *KeycloakClient
}

func NewKeycloakAuthorizer(client *KeycloakClient) *KeycloakAuthorizer {
	return &KeycloakAuthorizer{client: client}
}

func (a *KeycloakAuthorizer) CanReview(ctx context.Context, actorID string) error {
	return a.requireRole(ctx, actorID, RoleCreditReviewer)
}

func (a *KeycloakAuthorizer) CanOriginate(ctx context.Context, actorID string) error {
	return a.requireRole(ctx, actorID, RoleLoanOfficer)
}

func (a *KeycloakAuthorizer) CanCollect(ctx context.Context, actorID string) error {
	return a.requireRole(ctx, actorID, RoleFieldCollector)
}

func (a *KeycloakAuthorizer) requireRole(ctx context.Context, actorID, role string) error {
	roles, err := a.client.GetUserRealmRoles(ctx, actorID)
	if err != nil {
		return errors.NewAuthorizationError(
			fmt.Sprintf("role lookup failed for %s: %s", actorID, err.Error()))
	}

	for _, r := range roles {
		if r.Name == role {
			return nil
		}
	}

	return errors.NewAuthorizationError(
		fmt.Sprintf("actor %s is missing role %s", actorID, role))
}

// StaticAuthorizer grants every capability. Used in development environments
// without a Keycloak realm and in tests.
type StaticAuthorizer struct{}

func (StaticAuthorizer) CanReview(_ context.Context, _ string) error    { return nil }
func (StaticAuthorizer) CanOriginate(_ context.Context, _ string) error { return nil }
func (StaticAuthorizer) CanCollect(_ context.Context, _ string) error   { return nil }
