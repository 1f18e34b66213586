package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"teamhub/pkg/domain"
)

var testTopics = []string{"Élevage", "Agriculture", "Pêche"}

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("UserEmailUnique", func(t *testing.T) { testUserEmailUnique(t, newStore(t)) })
	t.Run("UpdateUser", func(t *testing.T) { testUpdateUser(t, newStore(t)) })
	t.Run("AssignUserTeamOnce", func(t *testing.T) { testAssignUserTeamOnce(t, newStore(t)) })
	t.Run("TeamsCreateRenameReset", func(t *testing.T) { testTeamsCreateRenameReset(t, newStore(t)) })
	t.Run("ClaimTopicConcurrent", func(t *testing.T) { testClaimTopicConcurrent(t, newStore(t)) })
	t.Run("ClaimTopicOnce", func(t *testing.T) { testClaimTopicOnce(t, newStore(t)) })
	t.Run("DocumentsAndUploaderDeletion", func(t *testing.T) { testDocumentsAndUploaderDeletion(t, newStore(t)) })
	t.Run("Activity", func(t *testing.T) { testActivity(t, newStore(t)) })
}

func mustCreateUser(t *testing.T, s Store, email string) domain.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), domain.User{
		Email:        email,
		PasswordHash: "hash",
		FullName:     "User " + email,
		Role:         domain.RoleStudent,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func mustCreateTeams(t *testing.T, s Store, n int) []domain.Team {
	t.Helper()
	teams := make([]domain.Team, 0, n)
	for i := 1; i <= n; i++ {
		teams = append(teams, domain.Team{Name: fmt.Sprintf("Équipe %d", i), Status: domain.TeamActive})
	}
	created, err := s.CreateTeams(context.Background(), teams)
	if err != nil {
		t.Fatalf("create teams: %v", err)
	}
	if len(created) != n {
		t.Fatalf("expected %d teams, got %d", n, len(created))
	}
	return created
}

func testUserEmailUnique(t *testing.T, s Store) {
	ctx := context.Background()
	u := mustCreateUser(t, s, "a@x.com")
	if u.ID <= 0 {
		t.Fatalf("expected positive id, got %d", u.ID)
	}
	if _, err := s.CreateUser(ctx, domain.User{Email: "a@x.com", PasswordHash: "h", FullName: "dup", Role: domain.RoleStudent}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	// Case-sensitive: a different casing is a different email.
	if _, err := s.CreateUser(ctx, domain.User{Email: "A@x.com", PasswordHash: "h", FullName: "upper", Role: domain.RoleStudent}); err != nil {
		t.Fatalf("expected differently cased email to be accepted, got %v", err)
	}
	got, ok, err := s.GetUserByEmail(ctx, "a@x.com")
	if err != nil || !ok {
		t.Fatalf("get by email: ok=%v err=%v", ok, err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected id %d, got %d", u.ID, got.ID)
	}
	if _, ok, _ := s.GetUserByID(ctx, u.ID+1000); ok {
		t.Fatalf("expected missing user lookup to report not found")
	}
}

func testUpdateUser(t *testing.T, s Store) {
	ctx := context.Background()
	a := mustCreateUser(t, s, "a@x.com")
	mustCreateUser(t, s, "b@x.com")

	taken := "b@x.com"
	if _, err := s.UpdateUser(ctx, a.ID, UserPatch{Email: &taken}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	name := "Alice"
	active := true
	role := domain.RoleAdmin
	updated, err := s.UpdateUser(ctx, a.ID, UserPatch{FullName: &name, IsActive: &active, Role: &role})
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if updated.FullName != "Alice" || !updated.IsActive || updated.Role != domain.RoleAdmin {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if _, err := s.UpdateUser(ctx, a.ID+1000, UserPatch{FullName: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	activeOnly := true
	count, err := s.CountUsers(ctx, UserFilter{Active: &activeOnly})
	if err != nil || count != 1 {
		t.Fatalf("expected 1 active user, got %d err=%v", count, err)
	}
}

func testAssignUserTeamOnce(t *testing.T, s Store) {
	ctx := context.Background()
	teams := mustCreateTeams(t, s, 2)
	u := mustCreateUser(t, s, "a@x.com")

	assigned, err := s.AssignUserTeam(ctx, u.ID, teams[0].ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !assigned.InTeam(teams[0].ID) {
		t.Fatalf("expected user in team %d, got %+v", teams[0].ID, assigned.TeamID)
	}
	if _, err := s.AssignUserTeam(ctx, u.ID, teams[1].ID); !errors.Is(err, ErrAlreadySet) {
		t.Fatalf("expected ErrAlreadySet on reassignment, got %v", err)
	}
	if _, err := s.AssignUserTeam(ctx, u.ID+1000, teams[1].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
	team, ok, err := s.GetTeam(ctx, teams[0].ID)
	if err != nil || !ok {
		t.Fatalf("get team: ok=%v err=%v", ok, err)
	}
	if team.MemberCount != 1 {
		t.Fatalf("expected member count 1, got %d", team.MemberCount)
	}
}

func testTeamsCreateRenameReset(t *testing.T, s Store) {
	ctx := context.Background()
	teams := mustCreateTeams(t, s, 3)
	if _, err := s.CreateTeams(ctx, []domain.Team{{Name: "late"}}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when teams exist, got %v", err)
	}

	taken := teams[1].Name
	if _, err := s.UpdateTeam(ctx, teams[0].ID, TeamPatch{Name: &taken}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for taken name, got %v", err)
	}
	fresh := "Les Pionniers"
	renamed, err := s.UpdateTeam(ctx, teams[0].ID, TeamPatch{Name: &fresh})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != fresh {
		t.Fatalf("expected name %q, got %q", fresh, renamed.Name)
	}
	if _, ok, _ := s.GetTeamByName(ctx, fresh); !ok {
		t.Fatalf("expected renamed team to be found by name")
	}

	u := mustCreateUser(t, s, "a@x.com")
	if _, err := s.AssignUserTeam(ctx, u.ID, teams[0].ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := s.ClaimTopic(ctx, teams[0].ID, testTopics, nil); err != nil {
		t.Fatalf("claim topic: %v", err)
	}
	deleted, err := s.ResetTeams(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted teams, got %d", deleted)
	}
	got, _, _ := s.GetUserByID(ctx, u.ID)
	if got.TeamID != nil {
		t.Fatalf("expected user to be unassigned after reset")
	}
	count, err := s.CountTeams(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected no teams after reset, got %d err=%v", count, err)
	}
	// Topics are released by the reset.
	teams = mustCreateTeams(t, s, 3)
	for _, team := range teams {
		if _, err := s.ClaimTopic(ctx, team.ID, testTopics, nil); err != nil {
			t.Fatalf("claim after reset: %v", err)
		}
	}
}

func testClaimTopicConcurrent(t *testing.T, s Store) {
	ctx := context.Background()
	teams := mustCreateTeams(t, s, 4)

	var wg sync.WaitGroup
	results := make([]domain.Team, len(teams))
	errs := make([]error, len(teams))
	start := make(chan struct{})
	for i, team := range teams {
		wg.Add(1)
		go func(i int, teamID int64) {
			defer wg.Done()
			<-start
			// Always pick the first option so naive implementations would collide.
			results[i], errs[i] = s.ClaimTopic(ctx, teamID, testTopics, func(available []string) string {
				return available[0]
			})
		}(i, team.ID)
	}
	close(start)
	wg.Wait()

	seen := map[string]bool{}
	exhausted := 0
	for i := range teams {
		if errors.Is(errs[i], ErrExhausted) {
			exhausted++
			continue
		}
		if errs[i] != nil {
			t.Fatalf("claim %d: %v", i, errs[i])
		}
		if results[i].Theme == nil {
			t.Fatalf("claim %d returned no theme", i)
		}
		topic := *results[i].Theme
		if seen[topic] {
			t.Fatalf("topic %q assigned twice", topic)
		}
		seen[topic] = true
	}
	if len(seen) != len(testTopics) || exhausted != 1 {
		t.Fatalf("expected %d distinct topics and 1 exhausted, got %d and %d", len(testTopics), len(seen), exhausted)
	}
	withTheme, err := s.CountTeamsWithTheme(ctx)
	if err != nil || withTheme != len(testTopics) {
		t.Fatalf("expected %d teams with theme, got %d err=%v", len(testTopics), withTheme, err)
	}
}

func testClaimTopicOnce(t *testing.T, s Store) {
	ctx := context.Background()
	teams := mustCreateTeams(t, s, 1)
	first, err := s.ClaimTopic(ctx, teams[0].ID, testTopics, func([]string) string { return "Pêche" })
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.Theme == nil || *first.Theme != "Pêche" {
		t.Fatalf("expected picked topic Pêche, got %v", first.Theme)
	}
	if _, err := s.ClaimTopic(ctx, teams[0].ID, testTopics, nil); !errors.Is(err, ErrAlreadySet) {
		t.Fatalf("expected ErrAlreadySet, got %v", err)
	}
	if _, err := s.ClaimTopic(ctx, teams[0].ID+1000, testTopics, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDocumentsAndUploaderDeletion(t *testing.T, s Store) {
	ctx := context.Background()
	teams := mustCreateTeams(t, s, 2)
	u := mustCreateUser(t, s, "a@x.com")

	doc, err := s.CreateDocument(ctx, domain.Document{
		TeamID:     teams[0].ID,
		Filename:   "plan.pdf",
		StorageKey: "documents/team1/plan.pdf",
		UploadedBy: &u.ID,
		SizeBytes:  10,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if doc.Status != domain.ReviewPending {
		t.Fatalf("expected pending status, got %s", doc.Status)
	}
	if _, err := s.CreateDocument(ctx, domain.Document{
		TeamID:     teams[1].ID,
		Filename:   "other.pdf",
		StorageKey: "documents/team2/other.pdf",
		UploadedBy: &u.ID,
	}); err != nil {
		t.Fatalf("create second document: %v", err)
	}

	teamID := teams[0].ID
	docs, err := s.ListDocuments(ctx, DocumentFilter{TeamID: &teamID})
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 1 || docs[0].UploaderName != u.FullName {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	comment := "needs a conclusion"
	reviewed, err := s.ReviewDocument(ctx, doc.ID, domain.ReviewRejected, &comment)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.Status != domain.ReviewRejected || reviewed.AdminComment == nil || *reviewed.AdminComment != comment {
		t.Fatalf("unexpected review result: %+v", reviewed)
	}
	if _, err := s.ReviewDocument(ctx, doc.ID+1000, domain.ReviewApproved, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	pending, err := s.CountDocuments(ctx, DocumentFilter{Status: domain.ReviewPending})
	if err != nil || pending != 1 {
		t.Fatalf("expected 1 pending document, got %d err=%v", pending, err)
	}

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := s.DeleteUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	got, ok, err := s.GetDocument(ctx, doc.ID)
	if err != nil || !ok {
		t.Fatalf("get document: ok=%v err=%v", ok, err)
	}
	if got.UploadedBy != nil || got.UploaderName != UnknownUploader {
		t.Fatalf("expected orphaned document, got uploadedBy=%v name=%q", got.UploadedBy, got.UploaderName)
	}
}

func testActivity(t *testing.T, s Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.AppendActivity(ctx, domain.Activity{
			Action:  "draw",
			Subject: fmt.Sprintf("team:%d", i),
			Details: map[string]any{"topic": testTopics[i]},
		}); err != nil {
			t.Fatalf("append activity: %v", err)
		}
	}
	entries, err := s.ListActivity(ctx, 2)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Subject != "team:2" {
		t.Fatalf("expected newest entry first, got %q", entries[0].Subject)
	}
	if entries[0].Details["topic"] != testTopics[2] {
		t.Fatalf("expected details to round trip, got %v", entries[0].Details)
	}
}
