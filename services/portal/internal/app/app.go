package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"teamhub/internal/util"
	"teamhub/pkg/auth"
	"teamhub/pkg/domain"
	"teamhub/pkg/storage"
	"teamhub/pkg/store"
)

const (
	defaultDocumentMaxBytes = 10 << 20
	defaultLogoMaxBytes     = 2 << 20
	defaultTeamCount        = 3
)

var (
	defaultTopics             = []string{"Élevage", "Agriculture", "Pêche"}
	defaultDocumentExtensions = []string{".ppt", ".pptx", ".doc", ".docx", ".pdf"}
	logoExtensions            = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store  store.Store
	Blobs  storage.ObjectStore
	Tokens *auth.TokenService

	// AdminCode grants the admin role at registration. Empty disables it.
	AdminCode string
	// Topics is the pool teams draw from.
	Topics []string
	// PasswordCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	PasswordCost int

	DocumentMaxBytes   int64
	DocumentExtensions []string

	Now func() time.Time
	// Rand picks topics. Nil uses the global source.
	Rand *rand.Rand
}

// App is the core engine: accounts, authorization, team workflow and document review.
type App struct {
	store  store.Store
	blobs  storage.ObjectStore
	tokens *auth.TokenService

	adminCode    string
	topics       []string
	passwordCost int
	dummyHash    string

	documentMaxBytes   int64
	documentExtensions map[string]struct{}
	logoExtensions     map[string]struct{}

	now   func() time.Time
	rngMu sync.Mutex
	rng   *rand.Rand
}

// New validates cfg and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token service is required")
	}
	topics, err := normalizeTopics(cfg.Topics)
	if err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	maxBytes := cfg.DocumentMaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultDocumentMaxBytes
	}
	exts := cfg.DocumentExtensions
	if len(exts) == 0 {
		exts = defaultDocumentExtensions
	}
	// Login compares against this hash when the email is unknown so both
	// paths cost one bcrypt comparison.
	dummyHash, err := auth.HashPasswordWithCost("teamhub-unknown-user", cfg.PasswordCost)
	if err != nil {
		return nil, fmt.Errorf("init dummy hash: %w", err)
	}
	return &App{
		store:              cfg.Store,
		blobs:              cfg.Blobs,
		tokens:             cfg.Tokens,
		adminCode:          cfg.AdminCode,
		topics:             topics,
		passwordCost:       cfg.PasswordCost,
		dummyHash:          dummyHash,
		documentMaxBytes:   maxBytes,
		documentExtensions: normalizeExtensions(exts),
		logoExtensions:     normalizeExtensions(logoExtensions),
		now:                cfg.Now,
		rng:                cfg.Rand,
	}, nil
}

// Topics returns a copy of the topic pool.
func (a *App) Topics() []string {
	return append([]string(nil), a.topics...)
}

// DocumentMaxBytes returns the largest accepted document size.
func (a *App) DocumentMaxBytes() int64 {
	return a.documentMaxBytes
}

// LogoMaxBytes returns the largest accepted logo size.
func (a *App) LogoMaxBytes() int64 {
	return defaultLogoMaxBytes
}

// TokenTTL returns the lifetime of issued tokens.
func (a *App) TokenTTL() time.Duration {
	return a.tokens.TTL()
}

func (a *App) pickTopic(available []string) string {
	if a.rng == nil {
		return available[rand.IntN(len(available))]
	}
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return available[a.rng.IntN(len(available))]
}

func (a *App) issueToken(user domain.User) (string, error) {
	token, err := a.tokens.Issue(strconv.FormatInt(user.ID, 10))
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// record appends to the activity log. Failures are logged and swallowed: the
// audited mutation has already been committed.
func (a *App) record(ctx context.Context, actor *domain.User, action, subject string, details map[string]any) {
	entry := domain.Activity{
		Action:    action,
		Subject:   subject,
		Details:   details,
		CreatedAt: a.now().UTC(),
	}
	if actor != nil && actor.ID > 0 {
		id := actor.ID
		entry.ActorID = &id
	}
	if err := a.store.AppendActivity(context.WithoutCancel(ctx), entry); err != nil {
		util.LoggerFromContext(ctx).Warn("activity append failed", "action", action, "subject", subject, "err", err)
	}
}

func normalizeTopics(in []string) ([]string, error) {
	if len(in) == 0 {
		return append([]string(nil), defaultTopics...), nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, topic := range in {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			return nil, errors.New("topics must not contain empty entries")
		}
		if _, dup := seen[topic]; dup {
			return nil, fmt.Errorf("duplicate topic %q", topic)
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	return out, nil
}

func normalizeExtensions(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, ext := range in {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func teamSubject(id int64) string {
	return "team:" + strconv.FormatInt(id, 10)
}

func userSubject(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

func documentSubject(id int64) string {
	return "document:" + strconv.FormatInt(id, 10)
}
