package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"teamhub/pkg/domain"
)

// MemoryStore keeps everything in-process. It is used for local runs and
// tests; compound operations hold the write lock for their whole duration,
// which gives them the same atomicity as the Postgres transactions.
type MemoryStore struct {
	mu sync.RWMutex

	users    map[int64]domain.User
	emails   map[string]int64 // email -> user ID
	teams    map[int64]domain.Team
	docs     map[int64]domain.Document
	activity []domain.Activity

	nextUserID     int64
	nextTeamID     int64
	nextDocumentID int64
	nextActivityID int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]domain.User),
		emails: make(map[string]int64),
		teams:  make(map[int64]domain.Team),
		docs:   make(map[int64]domain.Document),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.emails[u.Email]; exists {
		return domain.User{}, ErrConflict
	}
	m.nextUserID++
	u.ID = m.nextUserID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.TeamID = cloneInt64(u.TeamID)
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return u, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id int64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return cloneUser(u), ok, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	return cloneUser(m.users[id]), true, nil
}

func (m *MemoryStore) ListUsers(_ context.Context, filter UserFilter) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterUsersLocked(filter), nil
}

func (m *MemoryStore) CountUsers(_ context.Context, filter UserFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.filterUsersLocked(filter)), nil
}

func (m *MemoryStore) filterUsersLocked(filter UserFilter) []domain.User {
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Active != nil && u.IsActive != *filter.Active {
			continue
		}
		if filter.TeamID != nil && !u.InTeam(*filter.TeamID) {
			continue
		}
		res = append(res, cloneUser(u))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (m *MemoryStore) UpdateUser(_ context.Context, id int64, patch UserPatch) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if patch.Email != nil && *patch.Email != u.Email {
		if _, taken := m.emails[*patch.Email]; taken {
			return domain.User{}, ErrConflict
		}
		delete(m.emails, u.Email)
		u.Email = *patch.Email
		m.emails[u.Email] = u.ID
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	m.users[id] = u
	return cloneUser(u), nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	for docID, d := range m.docs {
		if d.UploadedBy != nil && *d.UploadedBy == id {
			d.UploadedBy = nil
			m.docs[docID] = d
		}
	}
	delete(m.emails, u.Email)
	delete(m.users, id)
	return nil
}

func (m *MemoryStore) AssignUserTeam(_ context.Context, userID, teamID int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if u.TeamID != nil {
		return cloneUser(u), ErrAlreadySet
	}
	u.TeamID = &teamID
	m.users[userID] = u
	return cloneUser(u), nil
}

func (m *MemoryStore) CreateTeams(_ context.Context, teams []domain.Team) ([]domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.teams) > 0 {
		return nil, ErrConflict
	}
	names := make(map[string]struct{}, len(teams))
	for _, t := range teams {
		if _, dup := names[t.Name]; dup {
			return nil, ErrConflict
		}
		names[t.Name] = struct{}{}
	}
	out := make([]domain.Team, 0, len(teams))
	now := time.Now().UTC()
	for _, t := range teams {
		m.nextTeamID++
		t.ID = m.nextTeamID
		if t.Status == "" {
			t.Status = domain.TeamActive
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.MemberCount = 0
		m.teams[t.ID] = cloneTeam(t)
		out = append(out, cloneTeam(t))
	}
	return out, nil
}

func (m *MemoryStore) ResetTeams(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.TeamID != nil {
			u.TeamID = nil
			m.users[id] = u
		}
	}
	deleted := len(m.teams)
	m.teams = make(map[int64]domain.Team)
	return deleted, nil
}

func (m *MemoryStore) GetTeam(_ context.Context, id int64) (domain.Team, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return domain.Team{}, false, nil
	}
	return m.withMemberCountLocked(t), true, nil
}

func (m *MemoryStore) GetTeamByName(_ context.Context, name string) (domain.Team, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.teams {
		if t.Name == name {
			return m.withMemberCountLocked(t), true, nil
		}
	}
	return domain.Team{}, false, nil
}

func (m *MemoryStore) ListTeams(_ context.Context) ([]domain.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Team, 0, len(m.teams))
	for _, t := range m.teams {
		res = append(res, m.withMemberCountLocked(t))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryStore) CountTeams(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.teams), nil
}

func (m *MemoryStore) CountTeamsWithTheme(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, t := range m.teams {
		if t.Theme != nil {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountSubThemes(_ context.Context, status domain.ReviewStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, t := range m.teams {
		if t.SubTheme != nil && t.SubThemeStatus != nil && *t.SubThemeStatus == status {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) UpdateTeam(_ context.Context, id int64, patch TeamPatch) (domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return domain.Team{}, ErrNotFound
	}
	if patch.Name != nil && *patch.Name != t.Name {
		for otherID, other := range m.teams {
			if otherID != id && other.Name == *patch.Name {
				return domain.Team{}, ErrConflict
			}
		}
		t.Name = *patch.Name
	}
	if patch.SubTheme != nil {
		t.SubTheme = cloneString(patch.SubTheme)
	}
	if patch.SubThemeStatus != nil {
		status := *patch.SubThemeStatus
		t.SubThemeStatus = &status
	}
	if patch.LogoKey != nil {
		t.LogoKey = cloneString(patch.LogoKey)
		t.HasLogo = *patch.LogoKey != ""
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	m.teams[id] = t
	return m.withMemberCountLocked(t), nil
}

func (m *MemoryStore) ClaimTopic(_ context.Context, teamID int64, pool []string, pick PickFunc) (domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return domain.Team{}, ErrNotFound
	}
	if t.Theme != nil {
		return domain.Team{}, ErrAlreadySet
	}
	taken := make(map[string]struct{}, len(m.teams))
	for _, other := range m.teams {
		if other.Theme != nil {
			taken[*other.Theme] = struct{}{}
		}
	}
	available := availableTopics(pool, taken)
	if len(available) == 0 {
		return domain.Team{}, ErrExhausted
	}
	topic := pickTopic(available, pick)
	t.Theme = &topic
	m.teams[teamID] = t
	return m.withMemberCountLocked(t), nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, d domain.Document) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.docs {
		if existing.StorageKey == d.StorageKey {
			return domain.Document{}, ErrConflict
		}
	}
	m.nextDocumentID++
	d.ID = m.nextDocumentID
	if d.Status == "" {
		d.Status = domain.ReviewPending
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	d.UploaderName = ""
	m.docs[d.ID] = cloneDocument(d)
	return m.withUploaderLocked(d), nil
}

func (m *MemoryStore) GetDocument(_ context.Context, id int64) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return domain.Document{}, false, nil
	}
	return m.withUploaderLocked(d), true, nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, filter DocumentFilter) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterDocumentsLocked(filter), nil
}

func (m *MemoryStore) CountDocuments(_ context.Context, filter DocumentFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.filterDocumentsLocked(filter)), nil
}

func (m *MemoryStore) filterDocumentsLocked(filter DocumentFilter) []domain.Document {
	res := make([]domain.Document, 0, len(m.docs))
	for _, d := range m.docs {
		if filter.TeamID != nil && d.TeamID != *filter.TeamID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		res = append(res, m.withUploaderLocked(d))
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].UploadedAt.Equal(res[j].UploadedAt) {
			return res[i].UploadedAt.After(res[j].UploadedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res
}

func (m *MemoryStore) ReviewDocument(_ context.Context, id int64, status domain.ReviewStatus, comment *string) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	d.Status = status
	d.AdminComment = cloneString(comment)
	m.docs[id] = d
	return m.withUploaderLocked(d), nil
}

func (m *MemoryStore) AppendActivity(_ context.Context, a domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextActivityID++
	a.ID = m.nextActivityID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.activity = append(m.activity, cloneActivity(a))
	return nil
}

func (m *MemoryStore) ListActivity(_ context.Context, limit int) ([]domain.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.activity) {
		limit = len(m.activity)
	}
	res := make([]domain.Activity, 0, limit)
	for i := len(m.activity) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, cloneActivity(m.activity[i]))
	}
	return res, nil
}

func (m *MemoryStore) withMemberCountLocked(t domain.Team) domain.Team {
	t = cloneTeam(t)
	t.MemberCount = 0
	for _, u := range m.users {
		if u.InTeam(t.ID) {
			t.MemberCount++
		}
	}
	return t
}

func (m *MemoryStore) withUploaderLocked(d domain.Document) domain.Document {
	d = cloneDocument(d)
	d.UploaderName = UnknownUploader
	if d.UploadedBy != nil {
		if u, ok := m.users[*d.UploadedBy]; ok && u.FullName != "" {
			d.UploaderName = u.FullName
		}
	}
	return d
}

func cloneUser(u domain.User) domain.User {
	u.TeamID = cloneInt64(u.TeamID)
	return u
}

func cloneTeam(t domain.Team) domain.Team {
	t.Theme = cloneString(t.Theme)
	t.SubTheme = cloneString(t.SubTheme)
	t.LogoKey = cloneString(t.LogoKey)
	if t.SubThemeStatus != nil {
		status := *t.SubThemeStatus
		t.SubThemeStatus = &status
	}
	return t
}

func cloneDocument(d domain.Document) domain.Document {
	d.UploadedBy = cloneInt64(d.UploadedBy)
	d.AdminComment = cloneString(d.AdminComment)
	return d
}

func cloneActivity(a domain.Activity) domain.Activity {
	a.ActorID = cloneInt64(a.ActorID)
	a.Details = maps.Clone(a.Details)
	return a
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
