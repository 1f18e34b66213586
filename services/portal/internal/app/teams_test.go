package app

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"teamhub/pkg/domain"
)

func TestWorkflowScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	team := f.teams(t, admin, 3)[0]

	student, _, err := f.app.Register(ctx, RegisterInput{Email: "sam@example.com", Password: testPassword, FullName: "Sam"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.app.Approve(ctx, admin, student.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	student, token, err := f.app.Login(ctx, "sam@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if student, err = f.app.Authenticate(ctx, token); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	_, err = f.app.DrawTopic(ctx, student)
	expectErr(t, err, ErrNotInTeam)

	if _, err := f.app.AssignMember(ctx, admin, student.ID, team.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	student, err = f.app.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	drawn, err := f.app.DrawTopic(ctx, student)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if drawn.Theme == nil || !slices.Contains(f.app.Topics(), *drawn.Theme) {
		t.Fatalf("expected a topic from the pool, got %v", drawn.Theme)
	}
	_, err = f.app.DrawTopic(ctx, student)
	expectErr(t, err, ErrAlreadyHasTopic)
}

func TestConcurrentDrawsGetDistinctTopics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	teams := f.teams(t, admin, 4)
	members := make([]domain.User, len(teams))
	for i, team := range teams {
		members[i] = f.student(t, admin, "s"+strconv.Itoa(i)+"@example.com", team.ID)
	}

	var wg sync.WaitGroup
	themes := make([]string, 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			team, err := f.app.DrawTopic(ctx, members[i])
			errs[i] = err
			if err == nil && team.Theme != nil {
				themes[i] = *team.Theme
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
	}
	got := slices.Clone(themes)
	slices.Sort(got)
	want := f.app.Topics()
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Fatalf("expected the whole pool to be distributed once, got %v", themes)
	}

	_, err := f.app.DrawTopic(ctx, members[3])
	expectErr(t, err, ErrPoolExhausted)
}

func TestAssignMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	teams := f.teams(t, admin, 2)
	sam := f.student(t, admin, "sam@example.com", 0)

	_, err := f.app.AssignMember(ctx, sam, sam.ID, teams[0].ID)
	expectErr(t, err, ErrForbidden)
	_, err = f.app.AssignMember(ctx, admin, sam.ID, 999)
	expectErr(t, err, ErrTeamNotFound)
	_, err = f.app.AssignMember(ctx, admin, 999, teams[0].ID)
	expectErr(t, err, ErrUserNotFound)

	if _, err := f.app.AssignMember(ctx, admin, sam.ID, teams[0].ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, err = f.app.AssignMember(ctx, admin, sam.ID, teams[1].ID)
	expectErr(t, err, ErrAlreadyAssigned)

	detail, err := f.app.GetTeam(ctx, teams[0].ID)
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	if len(detail.Members) != 1 || detail.Members[0].ID != sam.ID {
		t.Fatalf("members = %+v", detail.Members)
	}
	listed, err := f.app.ListTeams(ctx)
	if err != nil || len(listed) != 2 || listed[0].MemberCount != 1 || listed[1].MemberCount != 0 {
		t.Fatalf("list teams = %+v, %v", listed, err)
	}

	// Admins are assignable like anyone else.
	placed, err := f.app.AssignMember(ctx, admin, admin.ID, teams[1].ID)
	if err != nil {
		t.Fatalf("assign admin: %v", err)
	}
	if !placed.InTeam(teams[1].ID) || !placed.IsAdmin() {
		t.Fatalf("assigned admin = %+v", placed)
	}
}

func TestSubThemeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	team := f.teams(t, admin, 1)[0]
	sam := f.student(t, admin, "sam@example.com", team.ID)
	loner := f.student(t, admin, "loner@example.com", 0)

	_, err := f.app.ProposeSubTheme(ctx, loner, "anything")
	expectErr(t, err, ErrNotInTeam)
	_, err = f.app.ProposeSubTheme(ctx, sam, "Poulets bio")
	expectErr(t, err, ErrNoPrimaryTopic)
	_, err = f.app.DecideSubTheme(ctx, admin, team.ID, domain.ReviewApproved)
	expectErr(t, err, ErrNoSubTheme)

	if _, err := f.app.DrawTopic(ctx, sam); err != nil {
		t.Fatalf("draw: %v", err)
	}
	_, err = f.app.ProposeSubTheme(ctx, sam, "<p> </p>")
	expectErr(t, err, ErrInvalidInput)

	proposed, err := f.app.ProposeSubTheme(ctx, sam, "<b>Poulets</b>\n  <script>alert(1)</script>bio &amp; locaux")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if proposed.SubTheme == nil || *proposed.SubTheme != "Poulets bio & locaux" {
		t.Fatalf("sub-theme = %v", proposed.SubTheme)
	}
	if proposed.SubThemeStatus == nil || *proposed.SubThemeStatus != domain.ReviewPending {
		t.Fatalf("status = %v", proposed.SubThemeStatus)
	}

	_, err = f.app.DecideSubTheme(ctx, admin, team.ID, domain.ReviewPending)
	expectErr(t, err, ErrInvalidDecision)
	_, err = f.app.DecideSubTheme(ctx, admin, 999, domain.ReviewApproved)
	expectErr(t, err, ErrTeamNotFound)
	_, err = f.app.DecideSubTheme(ctx, sam, team.ID, domain.ReviewApproved)
	expectErr(t, err, ErrForbidden)

	decided, err := f.app.DecideSubTheme(ctx, admin, team.ID, domain.ReviewRejected)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if *decided.SubThemeStatus != domain.ReviewRejected || *decided.SubTheme != "Poulets bio & locaux" {
		t.Fatalf("decision should keep text: %+v", decided)
	}

	// A new proposal goes back to pending.
	again, err := f.app.ProposeSubTheme(ctx, sam, "Volailles fermières")
	if err != nil {
		t.Fatalf("re-propose: %v", err)
	}
	if *again.SubThemeStatus != domain.ReviewPending {
		t.Fatalf("status after re-proposal = %s", *again.SubThemeStatus)
	}
}

func TestRenameTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	teams := f.teams(t, admin, 2)
	sam := f.student(t, admin, "sam@example.com", teams[0].ID)
	loner := f.student(t, admin, "loner@example.com", 0)

	_, err := f.app.RenameTeam(ctx, loner, "Solo")
	expectErr(t, err, ErrNotInTeam)
	_, err = f.app.RenameTeam(ctx, sam, "   ")
	expectErr(t, err, ErrInvalidInput)
	_, err = f.app.RenameTeam(ctx, sam, teams[1].Name)
	expectErr(t, err, ErrNameTaken)

	same, err := f.app.RenameTeam(ctx, sam, teams[0].Name)
	if err != nil || same.Name != teams[0].Name {
		t.Fatalf("renaming to the current name should succeed: %+v %v", same, err)
	}
	renamed, err := f.app.RenameTeam(ctx, sam, "  Les   Fermiers ")
	if err != nil || renamed.Name != "Les Fermiers" {
		t.Fatalf("rename: %+v %v", renamed, err)
	}
}

func TestCreateAndResetTeams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	teams, err := f.app.CreateTeams(ctx, admin, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(teams) != 3 || teams[0].Name != "Équipe 1" || teams[2].Name != "Équipe 3" || teams[0].Status != domain.TeamActive {
		t.Fatalf("default teams = %+v", teams)
	}
	_, err = f.app.CreateTeams(ctx, admin, 2)
	expectErr(t, err, ErrTeamsExist)
	_, err = f.app.CreateTeams(ctx, admin, -1)
	expectErr(t, err, ErrInvalidInput)

	sam := f.student(t, admin, "sam@example.com", teams[0].ID)
	if _, err := f.app.DrawTopic(ctx, sam); err != nil {
		t.Fatalf("draw: %v", err)
	}

	n, err := f.app.ResetTeams(ctx, admin)
	if err != nil || n != 3 {
		t.Fatalf("reset = %d, %v", n, err)
	}
	sam, err = f.app.Authenticate(ctx, mustToken(t, f, sam))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if sam.TeamID != nil {
		t.Fatalf("reset should unassign students")
	}

	// Topics are released: a fresh set of teams can draw the whole pool again.
	fresh := f.teams(t, admin, 3)
	for i, team := range fresh {
		member := f.student(t, admin, "fresh"+strconv.Itoa(i)+"@example.com", team.ID)
		if _, err := f.app.DrawTopic(ctx, member); err != nil {
			t.Fatalf("draw after reset: %v", err)
		}
	}
}

func TestSetTeamStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	team := f.teams(t, admin, 1)[0]

	done, err := f.app.SetTeamStatus(ctx, admin, team.ID, domain.TeamCompleted)
	if err != nil || done.Status != domain.TeamCompleted {
		t.Fatalf("set status: %+v %v", done, err)
	}
	_, err = f.app.SetTeamStatus(ctx, admin, team.ID, "archived")
	expectErr(t, err, ErrInvalidInput)
	_, err = f.app.SetTeamStatus(ctx, admin, 999, domain.TeamActive)
	expectErr(t, err, ErrTeamNotFound)
}

func TestTeamLogo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	team := f.teams(t, admin, 1)[0]
	sam := f.student(t, admin, "sam@example.com", team.ID)

	_, _, err := f.app.TeamLogo(ctx, team.ID)
	expectErr(t, err, ErrLogoNotFound)
	_, err = f.app.UploadLogo(ctx, sam, "logo.bmp", []byte("x"))
	expectErr(t, err, ErrInvalidExtension)
	_, err = f.app.UploadLogo(ctx, sam, "logo.png", bytes.Repeat([]byte{1}, int(f.app.LogoMaxBytes())+1))
	expectErr(t, err, ErrTooLarge)

	first, err := f.app.UploadLogo(ctx, sam, "Logo.PNG", []byte("first"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !first.HasLogo || first.LogoKey == nil || !strings.HasPrefix(*first.LogoKey, "logos/team"+strconv.FormatInt(team.ID, 10)+"/") {
		t.Fatalf("logo key = %v", first.LogoKey)
	}
	second, err := f.app.UploadLogo(ctx, sam, "logo.webp", []byte("second"))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if ok, _ := f.blobs.Exists(ctx, *first.LogoKey); ok {
		t.Fatalf("old logo should be deleted")
	}

	rc, contentType, err := f.app.TeamLogo(ctx, team.ID)
	if err != nil {
		t.Fatalf("team logo: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "second" || contentType != "image/webp" {
		t.Fatalf("logo = %q %q", data, contentType)
	}

	if err := f.blobs.Delete(ctx, *second.LogoKey); err != nil {
		t.Fatalf("delete blob: %v", err)
	}
	_, _, err = f.app.TeamLogo(ctx, team.ID)
	expectErr(t, err, ErrLogoNotFound)
}

func mustToken(t *testing.T, f *fixture, u domain.User) string {
	t.Helper()
	token, err := f.app.issueToken(u)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}
