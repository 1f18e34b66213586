package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"teamhub/internal/util"
	"teamhub/pkg/domain"
	"teamhub/pkg/storage"
	"teamhub/pkg/store"
)

const (
	maxTeamNameRunes = 80
	maxSubThemeRunes = 500
	maxTeamCount     = 50
)

// AssignMember places a user in a team. Any role may join; a user joins at most one team.
func (a *App) AssignMember(ctx context.Context, actor domain.User, userID, teamID int64) (domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.User{}, err
	}
	team, err := a.loadTeam(ctx, teamID)
	if err != nil {
		return domain.User{}, err
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	user, err = a.store.AssignUserTeam(ctx, userID, team.ID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadySet):
			return domain.User{}, ErrAlreadyAssigned
		case errors.Is(err, store.ErrNotFound):
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("assign team: %w", err)
	}
	a.record(ctx, &actor, "assign", userSubject(user.ID), map[string]any{"teamId": team.ID})
	return user, nil
}

// DrawTopic gives the actor's team a random topic no other team holds.
// Draws are serialized by the store, so concurrent callers never share a topic.
func (a *App) DrawTopic(ctx context.Context, actor domain.User) (domain.Team, error) {
	if actor.TeamID == nil {
		return domain.Team{}, ErrNotInTeam
	}
	team, err := a.store.ClaimTopic(ctx, *actor.TeamID, a.topics, a.pickTopic)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadySet):
			return domain.Team{}, ErrAlreadyHasTopic
		case errors.Is(err, store.ErrExhausted):
			return domain.Team{}, ErrPoolExhausted
		case errors.Is(err, store.ErrNotFound):
			return domain.Team{}, ErrTeamNotFound
		}
		return domain.Team{}, fmt.Errorf("claim topic: %w", err)
	}
	theme := ""
	if team.Theme != nil {
		theme = *team.Theme
	}
	a.record(ctx, &actor, "draw", teamSubject(team.ID), map[string]any{"theme": theme})
	return team, nil
}

// ProposeSubTheme sets the team's sub-theme and puts it up for review.
// A new proposal replaces any earlier one, whatever its status.
func (a *App) ProposeSubTheme(ctx context.Context, actor domain.User, text string) (domain.Team, error) {
	if actor.TeamID == nil {
		return domain.Team{}, ErrNotInTeam
	}
	team, err := a.loadTeam(ctx, *actor.TeamID)
	if err != nil {
		return domain.Team{}, err
	}
	if team.Theme == nil {
		return domain.Team{}, ErrNoPrimaryTopic
	}
	subTheme := plainText(text)
	if subTheme == "" {
		return domain.Team{}, ErrInvalidInput.WithMessage("sub-theme is required")
	}
	if utf8.RuneCountInString(subTheme) > maxSubThemeRunes {
		return domain.Team{}, ErrInvalidInput.WithMessage("sub-theme is too long")
	}
	pending := domain.ReviewPending
	team, err = a.updateTeam(ctx, team.ID, store.TeamPatch{SubTheme: &subTheme, SubThemeStatus: &pending})
	if err != nil {
		return domain.Team{}, err
	}
	a.record(ctx, &actor, "subtheme.propose", teamSubject(team.ID), map[string]any{"subTheme": subTheme})
	return team, nil
}

// DecideSubTheme approves or rejects a team's proposal. The text is kept.
func (a *App) DecideSubTheme(ctx context.Context, actor domain.User, teamID int64, decision domain.ReviewStatus) (domain.Team, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Team{}, err
	}
	if !decision.IsDecision() {
		return domain.Team{}, ErrInvalidDecision
	}
	team, err := a.loadTeam(ctx, teamID)
	if err != nil {
		return domain.Team{}, err
	}
	if team.SubTheme == nil {
		return domain.Team{}, ErrNoSubTheme
	}
	team, err = a.updateTeam(ctx, team.ID, store.TeamPatch{SubThemeStatus: &decision})
	if err != nil {
		return domain.Team{}, err
	}
	a.record(ctx, &actor, "subtheme.decide", teamSubject(team.ID), map[string]any{"decision": string(decision)})
	return team, nil
}

// RenameTeam changes the actor's team name. Names are unique.
func (a *App) RenameTeam(ctx context.Context, actor domain.User, newName string) (domain.Team, error) {
	if actor.TeamID == nil {
		return domain.Team{}, ErrNotInTeam
	}
	name := strings.Join(strings.Fields(newName), " ")
	if name == "" {
		return domain.Team{}, ErrInvalidInput.WithMessage("team name is required")
	}
	if utf8.RuneCountInString(name) > maxTeamNameRunes {
		return domain.Team{}, ErrInvalidInput.WithMessage("team name is too long")
	}
	teamID := *actor.TeamID
	other, exists, err := a.store.GetTeamByName(ctx, name)
	if err != nil {
		return domain.Team{}, fmt.Errorf("check team name: %w", err)
	}
	if exists && other.ID != teamID {
		return domain.Team{}, ErrNameTaken
	}
	team, err := a.updateTeam(ctx, teamID, store.TeamPatch{Name: &name})
	if err != nil {
		return domain.Team{}, err
	}
	a.record(ctx, &actor, "rename", teamSubject(team.ID), map[string]any{"name": name})
	return team, nil
}

// CreateTeams creates count empty teams named "Équipe N". It refuses to run
// while any team exists; ResetTeams clears them first.
func (a *App) CreateTeams(ctx context.Context, actor domain.User, count int) ([]domain.Team, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if count == 0 {
		count = defaultTeamCount
	}
	if count < 0 || count > maxTeamCount {
		return nil, ErrInvalidInput.WithMessage(fmt.Sprintf("team count must be between 1 and %d", maxTeamCount))
	}
	now := a.now().UTC()
	teams := make([]domain.Team, 0, count)
	for i := 1; i <= count; i++ {
		teams = append(teams, domain.Team{
			Name:      fmt.Sprintf("Équipe %d", i),
			Status:    domain.TeamActive,
			CreatedAt: now,
		})
	}
	created, err := a.store.CreateTeams(ctx, teams)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrTeamsExist
		}
		return nil, fmt.Errorf("create teams: %w", err)
	}
	a.record(ctx, &actor, "teams.create", "teams", map[string]any{"count": len(created)})
	return created, nil
}

// ResetTeams unassigns every student and deletes every team, releasing all
// topics. Documents keep their team id.
func (a *App) ResetTeams(ctx context.Context, actor domain.User) (int, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	n, err := a.store.ResetTeams(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset teams: %w", err)
	}
	a.record(ctx, &actor, "teams.reset", "teams", map[string]any{"deleted": n})
	return n, nil
}

// ListTeams returns all teams with member counts, ordered by id.
func (a *App) ListTeams(ctx context.Context) ([]domain.Team, error) {
	teams, err := a.store.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// GetTeam returns a team and its members.
func (a *App) GetTeam(ctx context.Context, teamID int64) (domain.TeamDetail, error) {
	team, err := a.loadTeam(ctx, teamID)
	if err != nil {
		return domain.TeamDetail{}, err
	}
	members, err := a.store.ListUsers(ctx, store.UserFilter{TeamID: &team.ID})
	if err != nil {
		return domain.TeamDetail{}, fmt.Errorf("list members: %w", err)
	}
	return domain.TeamDetail{Team: team, Members: members}, nil
}

// MyTeam returns the actor's team.
func (a *App) MyTeam(ctx context.Context, actor domain.User) (domain.TeamDetail, error) {
	if actor.TeamID == nil {
		return domain.TeamDetail{}, ErrNotInTeam
	}
	return a.GetTeam(ctx, *actor.TeamID)
}

// SetTeamStatus moves a team between active and completed.
func (a *App) SetTeamStatus(ctx context.Context, actor domain.User, teamID int64, status domain.TeamStatus) (domain.Team, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Team{}, err
	}
	if !status.Valid() {
		return domain.Team{}, ErrInvalidInput.WithMessage("unknown team status")
	}
	team, err := a.updateTeam(ctx, teamID, store.TeamPatch{Status: &status})
	if err != nil {
		return domain.Team{}, err
	}
	a.record(ctx, &actor, "team.status", teamSubject(team.ID), map[string]any{"status": string(status)})
	return team, nil
}

// UploadLogo stores an image as the actor's team logo, replacing any previous one.
func (a *App) UploadLogo(ctx context.Context, actor domain.User, filename string, data []byte) (domain.Team, error) {
	if actor.TeamID == nil {
		return domain.Team{}, ErrNotInTeam
	}
	ext := strings.ToLower(path.Ext(baseFilename(filename)))
	if _, ok := a.logoExtensions[ext]; !ok {
		return domain.Team{}, ErrInvalidExtension
	}
	if int64(len(data)) > defaultLogoMaxBytes {
		return domain.Team{}, ErrTooLarge
	}
	if len(data) == 0 {
		return domain.Team{}, ErrInvalidInput.WithMessage("file is empty")
	}
	team, err := a.loadTeam(ctx, *actor.TeamID)
	if err != nil {
		return domain.Team{}, err
	}
	key := logoKey(team.ID, ext)
	if err := a.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), ContentTypeFor(ext)); err != nil {
		return domain.Team{}, fmt.Errorf("store logo: %w", err)
	}
	updated, err := a.updateTeam(ctx, team.ID, store.TeamPatch{LogoKey: &key})
	if err != nil {
		a.deleteBlob(ctx, key)
		return domain.Team{}, err
	}
	if team.LogoKey != nil && *team.LogoKey != "" {
		a.deleteBlob(ctx, *team.LogoKey)
	}
	a.record(ctx, &actor, "logo", teamSubject(team.ID), nil)
	return updated, nil
}

// TeamLogo opens the team's logo. The caller closes the reader.
func (a *App) TeamLogo(ctx context.Context, teamID int64) (io.ReadCloser, string, error) {
	team, err := a.loadTeam(ctx, teamID)
	if err != nil {
		return nil, "", err
	}
	if team.LogoKey == nil || *team.LogoKey == "" {
		return nil, "", ErrLogoNotFound
	}
	rc, err := a.blobs.Get(ctx, *team.LogoKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", ErrLogoNotFound
		}
		return nil, "", fmt.Errorf("open logo: %w", err)
	}
	return rc, ContentTypeFor(*team.LogoKey), nil
}

func (a *App) loadTeam(ctx context.Context, teamID int64) (domain.Team, error) {
	team, ok, err := a.store.GetTeam(ctx, teamID)
	if err != nil {
		return domain.Team{}, fmt.Errorf("load team: %w", err)
	}
	if !ok {
		return domain.Team{}, ErrTeamNotFound
	}
	return team, nil
}

func (a *App) updateTeam(ctx context.Context, teamID int64, patch store.TeamPatch) (domain.Team, error) {
	team, err := a.store.UpdateTeam(ctx, teamID, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.Team{}, ErrTeamNotFound
		case errors.Is(err, store.ErrConflict):
			return domain.Team{}, ErrNameTaken
		}
		return domain.Team{}, fmt.Errorf("update team: %w", err)
	}
	return team, nil
}

// deleteBlob removes an orphaned blob. Failures only leave garbage behind.
func (a *App) deleteBlob(ctx context.Context, key string) {
	if err := a.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		util.LoggerFromContext(ctx).Warn("blob cleanup failed", "key", key, "err", err)
	}
}
