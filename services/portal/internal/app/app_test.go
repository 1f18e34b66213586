package app

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"teamhub/pkg/auth"
	"teamhub/pkg/domain"
	"teamhub/pkg/storage"
	"teamhub/pkg/store"
)

const (
	testSecret    = "test-secret-test-secret-test-secret"
	testAdminCode = "admin-code-2025"
	testPassword  = "correct horse battery staple"
)

type fixture struct {
	app   *App
	store store.Store
	mem   *store.MemoryStore
	blobs *storage.FileStore
	dir   string
	now   time.Time
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		mem: store.NewMemoryStore(),
		now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store = f.mem
	f.dir = t.TempDir()
	blobs, err := storage.NewFileStore(f.dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	f.blobs = blobs
	clock := func() time.Time { return f.now }
	tokens, err := auth.NewTokenService(testSecret, auth.TokenOptions{Now: clock})
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	cfg := Config{
		Store:        f.store,
		Blobs:        f.blobs,
		Tokens:       tokens,
		AdminCode:    testAdminCode,
		PasswordCost: bcrypt.MinCost,
		Now:          clock,
		Rand:         rand.New(rand.NewPCG(1, 2)),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	f.app = a
	return f
}

func (f *fixture) admin(t *testing.T) domain.User {
	t.Helper()
	user, _, err := f.app.Register(context.Background(), RegisterInput{
		Email:     "admin@example.com",
		Password:  testPassword,
		FullName:  "Ada Admin",
		AdminCode: testAdminCode,
	})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	return user
}

// student registers and approves a student, optionally placing them in a team.
func (f *fixture) student(t *testing.T, admin domain.User, email string, teamID int64) domain.User {
	t.Helper()
	ctx := context.Background()
	user, _, err := f.app.Register(ctx, RegisterInput{Email: email, Password: testPassword, FullName: "Student " + email})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	if user, err = f.app.Approve(ctx, admin, user.ID); err != nil {
		t.Fatalf("approve %s: %v", email, err)
	}
	if teamID > 0 {
		if user, err = f.app.AssignMember(ctx, admin, user.ID, teamID); err != nil {
			t.Fatalf("assign %s: %v", email, err)
		}
	}
	return user
}

func (f *fixture) teams(t *testing.T, admin domain.User, n int) []domain.Team {
	t.Helper()
	teams, err := f.app.CreateTeams(context.Background(), admin, n)
	if err != nil {
		t.Fatalf("create teams: %v", err)
	}
	return teams
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tokens, err := auth.NewTokenService(testSecret, auth.TokenOptions{})
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	base := Config{Store: store.NewMemoryStore(), Blobs: blobs, Tokens: tokens, PasswordCost: bcrypt.MinCost}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing store", func(c *Config) { c.Store = nil }},
		{"missing blobs", func(c *Config) { c.Blobs = nil }},
		{"missing tokens", func(c *Config) { c.Tokens = nil }},
		{"duplicate topic", func(c *Config) { c.Topics = []string{"A", "A"} }},
		{"blank topic", func(c *Config) { c.Topics = []string{"A", " "} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	a, err := New(base)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if got := a.Topics(); len(got) != 3 || got[0] != "Élevage" {
		t.Fatalf("default topics = %v", got)
	}
	if a.DocumentMaxBytes() != 10<<20 {
		t.Fatalf("default document max = %d", a.DocumentMaxBytes())
	}
	if a.TokenTTL() != auth.DefaultTokenTTL {
		t.Fatalf("token ttl = %v", a.TokenTTL())
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{ErrInvalidToken, KindUnauthenticated},
		{ErrMalformedSubject, KindUnauthenticated},
		{ErrUnknownIdentity, KindUnauthenticated},
		{ErrForbidden, KindForbidden},
		{ErrNotActivated, KindForbidden},
		{ErrTeamNotFound, KindNotFound},
		{ErrAlreadyHasTopic, KindConflict},
		{ErrPoolExhausted, KindValidation},
		{ErrBlobMissing, KindIntegrity},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range tests {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
	custom := ErrInvalidInput.WithMessage("name too long")
	if !errors.Is(custom, ErrInvalidInput) || custom.Error() != "name too long" {
		t.Fatalf("WithMessage should keep identity: %v", custom)
	}
	if errors.Is(ErrNoTeam, ErrNotInTeam) {
		t.Fatalf("distinct codes must not match")
	}
}
