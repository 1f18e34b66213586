package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"teamhub/pkg/domain"
)

// Authenticate resolves a bearer token to the current user record.
func (a *App) Authenticate(ctx context.Context, token string) (domain.User, error) {
	subject, err := a.tokens.Validate(strings.TrimSpace(token))
	if err != nil {
		return domain.User{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return domain.User{}, ErrMalformedSubject
	}
	user, ok, err := a.store.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnknownIdentity
	}
	return user, nil
}

// RequireRole fails with ErrForbidden unless user holds role.
func RequireRole(user domain.User, role domain.UserRole) error {
	if user.Role != role {
		return ErrForbidden
	}
	return nil
}

// RequireActive fails with ErrNotActivated for accounts awaiting approval.
func RequireActive(user domain.User) error {
	if !user.IsActive {
		return ErrNotActivated
	}
	return nil
}

// requireAdmin guards privileged operations. A deactivated admin loses them.
func requireAdmin(user domain.User) error {
	if err := RequireRole(user, domain.RoleAdmin); err != nil {
		return err
	}
	return RequireActive(user)
}

// canAccessTeam reports whether user may read the team's documents.
func canAccessTeam(user domain.User, teamID int64) bool {
	return user.IsAdmin() || user.InTeam(teamID)
}
