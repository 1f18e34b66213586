package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"teamhub/pkg/auth"
	"teamhub/pkg/domain"
	"teamhub/pkg/store"
)

const maxFullNameRunes = 120

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FullName  string
	AdminCode string
}

// UserPatch lists the user fields an admin update may change. Nil means unchanged.
type UserPatch = store.UserPatch

// UserQuery narrows ListUsers.
type UserQuery struct {
	Role        domain.UserRole
	PendingOnly bool
}

// Register creates an account. A matching admin code yields an active admin;
// everyone else starts as an inactive student awaiting approval. A token is
// returned in both cases.
func (a *App) Register(ctx context.Context, in RegisterInput) (domain.User, string, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return domain.User{}, "", err
	}
	fullName, err := normalizeFullName(in.FullName)
	if err != nil {
		return domain.User{}, "", err
	}
	if in.Password == "" {
		return domain.User{}, "", ErrInvalidInput.WithMessage("password is required")
	}
	if _, exists, err := a.store.GetUserByEmail(ctx, email); err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	} else if exists {
		return domain.User{}, "", ErrDuplicateEmail
	}
	hash, err := auth.HashPasswordWithCost(in.Password, a.passwordCost)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	role := domain.RoleStudent
	if a.isAdminCode(in.AdminCode) {
		role = domain.RoleAdmin
	}
	user, err := a.store.CreateUser(ctx, domain.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         role,
		IsActive:     role == domain.RoleAdmin,
		CreatedAt:    a.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.User{}, "", ErrDuplicateEmail
		}
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	token, err := a.issueToken(user)
	if err != nil {
		return domain.User{}, "", err
	}
	a.record(ctx, &user, "register", userSubject(user.ID), map[string]any{"role": string(user.Role)})
	return user, token, nil
}

// Login verifies credentials and returns a token for an active account.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(email)
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load user: %w", err)
	}
	if !ok {
		auth.CheckPassword(password, a.dummyHash)
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if err := RequireActive(user); err != nil {
		return domain.User{}, "", err
	}
	token, err := a.issueToken(user)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// Approve activates an account. Approving an active account is a no-op.
func (a *App) Approve(ctx context.Context, actor domain.User, userID int64) (domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.User{}, err
	}
	active := true
	user, err := a.store.UpdateUser(ctx, userID, store.UserPatch{IsActive: &active})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("approve user: %w", err)
	}
	a.record(ctx, &actor, "approve", userSubject(user.ID), nil)
	return user, nil
}

// UpdateUser applies an admin edit to an account.
func (a *App) UpdateUser(ctx context.Context, actor domain.User, userID int64, patch UserPatch) (domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.User{}, err
	}
	if patch.FullName == nil && patch.Email == nil && patch.Role == nil && patch.IsActive == nil {
		return domain.User{}, ErrInvalidInput.WithMessage("nothing to update")
	}
	details := map[string]any{}
	if patch.FullName != nil {
		name, err := normalizeFullName(*patch.FullName)
		if err != nil {
			return domain.User{}, err
		}
		patch.FullName = &name
		details["fullName"] = name
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return domain.User{}, ErrInvalidInput.WithMessage("unknown role")
		}
		if userID == actor.ID && *patch.Role != domain.RoleAdmin {
			return domain.User{}, ErrInvalidInput.WithMessage("you cannot revoke your own admin role")
		}
		details["role"] = string(*patch.Role)
	}
	if patch.IsActive != nil {
		if userID == actor.ID && !*patch.IsActive {
			return domain.User{}, ErrInvalidInput.WithMessage("you cannot deactivate your own account")
		}
		details["isActive"] = *patch.IsActive
	}
	if patch.Email != nil {
		email, err := normalizeEmail(*patch.Email)
		if err != nil {
			return domain.User{}, err
		}
		other, exists, err := a.store.GetUserByEmail(ctx, email)
		if err != nil {
			return domain.User{}, fmt.Errorf("check email: %w", err)
		}
		if exists && other.ID != userID {
			return domain.User{}, ErrDuplicateEmail
		}
		patch.Email = &email
		details["email"] = email
	}
	user, err := a.store.UpdateUser(ctx, userID, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.User{}, ErrUserNotFound
		case errors.Is(err, store.ErrConflict):
			return domain.User{}, ErrDuplicateEmail
		}
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	a.record(ctx, &actor, "update", userSubject(user.ID), details)
	return user, nil
}

// DeleteUser removes an account. Documents it uploaded stay, with the
// uploader cleared.
func (a *App) DeleteUser(ctx context.Context, actor domain.User, userID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if userID == actor.ID {
		return ErrInvalidInput.WithMessage("you cannot delete your own account")
	}
	if err := a.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	a.record(ctx, &actor, "delete", userSubject(userID), nil)
	return nil
}

// ListUsers returns accounts matching q, oldest first.
func (a *App) ListUsers(ctx context.Context, actor domain.User, q UserQuery) ([]domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	filter := store.UserFilter{}
	if q.Role != "" {
		if !q.Role.Valid() {
			return nil, ErrInvalidInput.WithMessage("unknown role")
		}
		filter.Role = q.Role
	}
	if q.PendingOnly {
		inactive := false
		filter.Active = &inactive
	}
	users, err := a.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (a *App) isAdminCode(code string) bool {
	if a.adminCode == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(a.adminCode)) == 1
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ErrInvalidInput.WithMessage("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidInput.WithMessage("invalid email address")
	}
	return email, nil
}

func normalizeFullName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", ErrInvalidInput.WithMessage("full name is required")
	}
	if utf8.RuneCountInString(name) > maxFullNameRunes {
		return "", ErrInvalidInput.WithMessage("full name is too long")
	}
	return name, nil
}
