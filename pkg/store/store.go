package store

import (
	"context"
	"errors"

	"teamhub/pkg/domain"
)

var (
	// ErrNotFound is returned when a mutation targets a missing row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("store: conflict")
	// ErrAlreadySet is returned when a set-once field already holds a value.
	ErrAlreadySet = errors.New("store: already set")
	// ErrExhausted is returned when no topic is left in the pool.
	ErrExhausted = errors.New("store: pool exhausted")
)

// UserFilter narrows ListUsers. Zero value lists everyone.
type UserFilter struct {
	Role   domain.UserRole
	Active *bool
	TeamID *int64
}

// DocumentFilter narrows ListDocuments. Zero value lists everything.
type DocumentFilter struct {
	TeamID *int64
	Status domain.ReviewStatus
}

// UserPatch lists the user fields an update may touch. Nil means unchanged.
type UserPatch struct {
	FullName *string
	Email    *string
	Role     *domain.UserRole
	IsActive *bool
}

// TeamPatch lists the team fields an update may touch. The topic is absent
// on purpose: it can only be written through ClaimTopic.
type TeamPatch struct {
	Name           *string
	SubTheme       *string
	SubThemeStatus *domain.ReviewStatus
	LogoKey        *string
	Status         *domain.TeamStatus
}

// PickFunc chooses one topic among the available ones.
type PickFunc func(available []string) string

// Store defines persistence operations for users, teams, documents and the activity log.
type Store interface {
	// users
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id int64) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]domain.User, error)
	CountUsers(ctx context.Context, filter UserFilter) (int, error)
	UpdateUser(ctx context.Context, id int64, patch UserPatch) (domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
	// AssignUserTeam sets the team of a user who has none yet.
	// It returns ErrAlreadySet if the user already belongs to a team.
	AssignUserTeam(ctx context.Context, userID, teamID int64) (domain.User, error)

	// teams
	CreateTeams(ctx context.Context, teams []domain.Team) ([]domain.Team, error)
	ResetTeams(ctx context.Context) (int, error)
	GetTeam(ctx context.Context, id int64) (domain.Team, bool, error)
	GetTeamByName(ctx context.Context, name string) (domain.Team, bool, error)
	ListTeams(ctx context.Context) ([]domain.Team, error)
	CountTeams(ctx context.Context) (int, error)
	CountTeamsWithTheme(ctx context.Context) (int, error)
	CountSubThemes(ctx context.Context, status domain.ReviewStatus) (int, error)
	UpdateTeam(ctx context.Context, id int64, patch TeamPatch) (domain.Team, error)
	// ClaimTopic atomically assigns a topic from pool to the team.
	// Concurrent claims never hand out the same topic twice.
	ClaimTopic(ctx context.Context, teamID int64, pool []string, pick PickFunc) (domain.Team, error)

	// documents
	CreateDocument(ctx context.Context, d domain.Document) (domain.Document, error)
	GetDocument(ctx context.Context, id int64) (domain.Document, bool, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]domain.Document, error)
	CountDocuments(ctx context.Context, filter DocumentFilter) (int, error)
	ReviewDocument(ctx context.Context, id int64, status domain.ReviewStatus, comment *string) (domain.Document, error)

	// activity
	AppendActivity(ctx context.Context, a domain.Activity) error
	ListActivity(ctx context.Context, limit int) ([]domain.Activity, error)
}

// availableTopics returns pool entries not present in taken, preserving pool order.
func availableTopics(pool []string, taken map[string]struct{}) []string {
	out := make([]string, 0, len(pool))
	for _, topic := range pool {
		if _, ok := taken[topic]; ok {
			continue
		}
		out = append(out, topic)
	}
	return out
}

// UnknownUploader is shown for documents whose uploader no longer exists.
const UnknownUploader = "Unknown"

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

// pickTopic asks pick for a topic and falls back to the first available one
// when pick is nil or answers with something outside available.
func pickTopic(available []string, pick PickFunc) string {
	if pick != nil {
		choice := pick(available)
		for _, topic := range available {
			if topic == choice {
				return choice
			}
		}
	}
	return available[0]
}
