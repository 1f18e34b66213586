package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"teamhub/pkg/domain"
)

const (
	migrateLockID   int64 = 73217321
	topicDrawLockID int64 = 73217322
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &TeamModel{}, &DocumentModel{}, &ActivityModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// translateError maps driver errors onto the store's sentinel errors.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return err
	}
}

// CreateUser inserts a user and returns it with its assigned ID.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	model := userToModel(u)
	model.ID = 0
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	model.UpdatedAt = model.CreatedAt
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.User{}, translateError(err)
	}
	return userFromModel(model), nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by exact email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns users ordered by creation.
func (s *GormStore) ListUsers(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	var models []UserModel
	if err := applyUserFilter(s.db.WithContext(ctx), filter).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// CountUsers returns the number of users matching filter.
func (s *GormStore) CountUsers(ctx context.Context, filter UserFilter) (int, error) {
	var count int64
	if err := applyUserFilter(s.db.WithContext(ctx).Model(&UserModel{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func applyUserFilter(tx *gorm.DB, filter UserFilter) *gorm.DB {
	if filter.Role != "" {
		tx = tx.Where("role = ?", string(filter.Role))
	}
	if filter.Active != nil {
		tx = tx.Where("is_active = ?", *filter.Active)
	}
	if filter.TeamID != nil {
		tx = tx.Where("team_id = ?", *filter.TeamID)
	}
	return tx
}

// UpdateUser applies patch to a user. Email collisions surface as ErrConflict.
func (s *GormStore) UpdateUser(ctx context.Context, id int64, patch UserPatch) (domain.User, error) {
	updates := map[string]any{}
	if patch.FullName != nil {
		updates["full_name"] = *patch.FullName
	}
	if patch.Email != nil {
		updates["email"] = *patch.Email
	}
	if patch.Role != nil {
		updates["role"] = string(*patch.Role)
	}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	db := s.db.WithContext(ctx)
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		res := db.Model(&UserModel{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return domain.User{}, translateError(res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.User{}, ErrNotFound
		}
	}
	user, ok, err := s.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

// DeleteUser removes a user. Documents the user uploaded are kept, with the
// uploader reference cleared in the same transaction.
func (s *GormStore) DeleteUser(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&DocumentModel{}).
			Where("uploaded_by = ?", id).
			Update("uploaded_by", nil).Error; err != nil {
			return fmt.Errorf("clear document uploader: %w", err)
		}
		res := tx.Delete(&UserModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AssignUserTeam sets team_id only while it is still NULL.
func (s *GormStore) AssignUserTeam(ctx context.Context, userID, teamID int64) (domain.User, error) {
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ? AND team_id IS NULL", userID).
		Updates(map[string]any{"team_id": teamID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return domain.User{}, res.Error
	}
	user, ok, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if res.RowsAffected == 0 {
		return user, ErrAlreadySet
	}
	return user, nil
}

// CreateTeams inserts the initial set of teams. It fails with ErrConflict if
// any team already exists.
func (s *GormStore) CreateTeams(ctx context.Context, teams []domain.Team) ([]domain.Team, error) {
	out := make([]domain.Team, 0, len(teams))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&TeamModel{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		models := make([]TeamModel, 0, len(teams))
		now := time.Now().UTC()
		for _, t := range teams {
			m := teamToModel(t)
			m.ID = 0
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			m.UpdatedAt = m.CreatedAt
			models = append(models, m)
		}
		if len(models) == 0 {
			return nil
		}
		if err := tx.Create(&models).Error; err != nil {
			return translateError(err)
		}
		for _, m := range models {
			out = append(out, teamFromModel(m))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResetTeams unassigns every user and deletes all teams, releasing every topic.
func (s *GormStore) ResetTeams(ctx context.Context) (int, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", topicDrawLockID).Error; err != nil {
			return fmt.Errorf("acquire topic lock: %w", err)
		}
		if err := tx.Model(&UserModel{}).
			Where("team_id IS NOT NULL").
			Updates(map[string]any{"team_id": nil, "updated_at": time.Now().UTC()}).Error; err != nil {
			return fmt.Errorf("unassign users: %w", err)
		}
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&TeamModel{})
		if res.Error != nil {
			return fmt.Errorf("delete teams: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	return int(deleted), err
}

// GetTeam returns a team with its member count.
func (s *GormStore) GetTeam(ctx context.Context, id int64) (domain.Team, bool, error) {
	var model TeamModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Team{}, false, nil
		}
		return domain.Team{}, false, err
	}
	team := teamFromModel(model)
	count, err := s.CountUsers(ctx, UserFilter{TeamID: &team.ID})
	if err != nil {
		return domain.Team{}, false, err
	}
	team.MemberCount = count
	return team, true, nil
}

// GetTeamByName looks up a team by exact name.
func (s *GormStore) GetTeamByName(ctx context.Context, name string) (domain.Team, bool, error) {
	var model TeamModel
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Team{}, false, nil
		}
		return domain.Team{}, false, err
	}
	return teamFromModel(model), true, nil
}

type memberCountRow struct {
	TeamID int64
	Count  int
}

// ListTeams returns all teams ordered by ID with member counts filled in.
func (s *GormStore) ListTeams(ctx context.Context) ([]domain.Team, error) {
	db := s.db.WithContext(ctx)
	var models []TeamModel
	if err := db.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	var rows []memberCountRow
	if err := db.Model(&UserModel{}).
		Select("team_id, COUNT(*) AS count").
		Where("team_id IS NOT NULL").
		Group("team_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	counts := make(map[int64]int, len(rows))
	for _, row := range rows {
		counts[row.TeamID] = row.Count
	}
	res := make([]domain.Team, 0, len(models))
	for _, m := range models {
		team := teamFromModel(m)
		team.MemberCount = counts[team.ID]
		res = append(res, team)
	}
	return res, nil
}

// CountTeams returns the number of teams.
func (s *GormStore) CountTeams(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&TeamModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountTeamsWithTheme returns the number of teams holding a topic.
func (s *GormStore) CountTeamsWithTheme(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&TeamModel{}).Where("theme IS NOT NULL").Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountSubThemes returns the number of sub-themes in the given review status.
func (s *GormStore) CountSubThemes(ctx context.Context, status domain.ReviewStatus) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&TeamModel{}).
		Where("sub_theme IS NOT NULL AND sub_theme_status = ?", string(status)).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// UpdateTeam applies patch to a team. Name collisions surface as ErrConflict.
func (s *GormStore) UpdateTeam(ctx context.Context, id int64, patch TeamPatch) (domain.Team, error) {
	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.SubTheme != nil {
		updates["sub_theme"] = *patch.SubTheme
	}
	if patch.SubThemeStatus != nil {
		updates["sub_theme_status"] = string(*patch.SubThemeStatus)
	}
	if patch.LogoKey != nil {
		updates["logo_key"] = *patch.LogoKey
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		res := s.db.WithContext(ctx).Model(&TeamModel{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return domain.Team{}, translateError(res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.Team{}, ErrNotFound
		}
	}
	team, ok, err := s.GetTeam(ctx, id)
	if err != nil {
		return domain.Team{}, err
	}
	if !ok {
		return domain.Team{}, ErrNotFound
	}
	return team, nil
}

// ClaimTopic assigns a topic to the team inside one transaction. A
// transaction-scoped advisory lock serializes all draws; the unique index on
// theme backs it up.
func (s *GormStore) ClaimTopic(ctx context.Context, teamID int64, pool []string, pick PickFunc) (domain.Team, error) {
	var claimed TeamModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", topicDrawLockID).Error; err != nil {
			return fmt.Errorf("acquire topic lock: %w", err)
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&claimed, "id = ?", teamID).Error; err != nil {
			return translateError(err)
		}
		if claimed.Theme != nil {
			return ErrAlreadySet
		}
		var taken []string
		if err := tx.Model(&TeamModel{}).Where("theme IS NOT NULL").Pluck("theme", &taken).Error; err != nil {
			return fmt.Errorf("load taken topics: %w", err)
		}
		available := availableTopics(pool, toSet(taken))
		if len(available) == 0 {
			return ErrExhausted
		}
		topic := pickTopic(available, pick)
		res := tx.Model(&TeamModel{}).
			Where("id = ? AND theme IS NULL", teamID).
			Updates(map[string]any{"theme": topic, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return translateError(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySet
		}
		claimed.Theme = &topic
		return nil
	})
	if err != nil {
		return domain.Team{}, err
	}
	team := teamFromModel(claimed)
	count, err := s.CountUsers(ctx, UserFilter{TeamID: &team.ID})
	if err != nil {
		return domain.Team{}, err
	}
	team.MemberCount = count
	return team, nil
}

// CreateDocument inserts a document record.
func (s *GormStore) CreateDocument(ctx context.Context, d domain.Document) (domain.Document, error) {
	model := documentToModel(d)
	model.ID = 0
	if model.UploadedAt.IsZero() {
		model.UploadedAt = time.Now().UTC()
	}
	model.UpdatedAt = model.UploadedAt
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Document{}, translateError(err)
	}
	out := documentFromModel(model)
	out.UploaderName = d.UploaderName
	return out, nil
}

// GetDocument returns a document with its uploader name.
func (s *GormStore) GetDocument(ctx context.Context, id int64) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	docs, err := s.withUploaderNames(ctx, []DocumentModel{model})
	if err != nil {
		return domain.Document{}, false, err
	}
	return docs[0], true, nil
}

// ListDocuments returns documents newest first.
func (s *GormStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]domain.Document, error) {
	var models []DocumentModel
	if err := applyDocumentFilter(s.db.WithContext(ctx), filter).
		Order("uploaded_at DESC, id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return s.withUploaderNames(ctx, models)
}

// CountDocuments returns the number of documents matching filter.
func (s *GormStore) CountDocuments(ctx context.Context, filter DocumentFilter) (int, error) {
	var count int64
	if err := applyDocumentFilter(s.db.WithContext(ctx).Model(&DocumentModel{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func applyDocumentFilter(tx *gorm.DB, filter DocumentFilter) *gorm.DB {
	if filter.TeamID != nil {
		tx = tx.Where("team_id = ?", *filter.TeamID)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	return tx
}

// ReviewDocument overwrites status and comment.
func (s *GormStore) ReviewDocument(ctx context.Context, id int64, status domain.ReviewStatus, comment *string) (domain.Document, error) {
	res := s.db.WithContext(ctx).Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"admin_comment": comment,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.Document{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Document{}, ErrNotFound
	}
	doc, ok, err := s.GetDocument(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *GormStore) withUploaderNames(ctx context.Context, models []DocumentModel) ([]domain.Document, error) {
	ids := make([]int64, 0, len(models))
	seen := make(map[int64]struct{}, len(models))
	for _, m := range models {
		if m.UploadedBy == nil {
			continue
		}
		if _, ok := seen[*m.UploadedBy]; ok {
			continue
		}
		seen[*m.UploadedBy] = struct{}{}
		ids = append(ids, *m.UploadedBy)
	}
	names := make(map[int64]string, len(ids))
	if len(ids) > 0 {
		var users []UserModel
		if err := s.db.WithContext(ctx).Select("id", "full_name").Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, fmt.Errorf("load uploaders: %w", err)
		}
		for _, u := range users {
			names[u.ID] = u.FullName
		}
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		doc := documentFromModel(m)
		if m.UploadedBy != nil {
			doc.UploaderName = names[*m.UploadedBy]
		}
		if doc.UploaderName == "" {
			doc.UploaderName = UnknownUploader
		}
		res = append(res, doc)
	}
	return res, nil
}

// AppendActivity records a workflow event.
func (s *GormStore) AppendActivity(ctx context.Context, a domain.Activity) error {
	model, err := activityToModel(a)
	if err != nil {
		return err
	}
	model.ID = 0
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListActivity returns the most recent events first.
func (s *GormStore) ListActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	var models []ActivityModel
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Activity, 0, len(models))
	for _, m := range models {
		res = append(res, activityFromModel(m))
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		Role:         string(u.Role),
		TeamID:       u.TeamID,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		FullName:     m.FullName,
		Role:         domain.UserRole(m.Role),
		TeamID:       m.TeamID,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
	}
}

func teamToModel(t domain.Team) TeamModel {
	status := t.Status
	if status == "" {
		status = domain.TeamActive
	}
	var subStatus *string
	if t.SubThemeStatus != nil {
		v := string(*t.SubThemeStatus)
		subStatus = &v
	}
	return TeamModel{
		ID:             t.ID,
		Name:           t.Name,
		Theme:          t.Theme,
		SubTheme:       t.SubTheme,
		SubThemeStatus: subStatus,
		LogoKey:        t.LogoKey,
		Status:         string(status),
		CreatedAt:      t.CreatedAt,
	}
}

func teamFromModel(m TeamModel) domain.Team {
	var subStatus *domain.ReviewStatus
	if m.SubThemeStatus != nil {
		v := domain.ReviewStatus(*m.SubThemeStatus)
		subStatus = &v
	}
	return domain.Team{
		ID:             m.ID,
		Name:           m.Name,
		Theme:          m.Theme,
		SubTheme:       m.SubTheme,
		SubThemeStatus: subStatus,
		LogoKey:        m.LogoKey,
		HasLogo:        m.LogoKey != nil && *m.LogoKey != "",
		Status:         domain.TeamStatus(m.Status),
		CreatedAt:      m.CreatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	status := d.Status
	if status == "" {
		status = domain.ReviewPending
	}
	return DocumentModel{
		ID:           d.ID,
		TeamID:       d.TeamID,
		Filename:     d.Filename,
		StorageKey:   d.StorageKey,
		UploadedBy:   d.UploadedBy,
		Status:       string(status),
		AdminComment: d.AdminComment,
		SizeBytes:    d.SizeBytes,
		PageCount:    d.PageCount,
		UploadedAt:   d.UploadedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:           m.ID,
		TeamID:       m.TeamID,
		Filename:     m.Filename,
		StorageKey:   m.StorageKey,
		UploadedBy:   m.UploadedBy,
		Status:       domain.ReviewStatus(m.Status),
		AdminComment: m.AdminComment,
		SizeBytes:    m.SizeBytes,
		PageCount:    m.PageCount,
		UploadedAt:   m.UploadedAt,
	}
}

func activityToModel(a domain.Activity) (ActivityModel, error) {
	model := ActivityModel{
		ID:        a.ID,
		ActorID:   a.ActorID,
		Action:    a.Action,
		Subject:   a.Subject,
		CreatedAt: a.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if len(a.Details) > 0 {
		raw, err := json.Marshal(a.Details)
		if err != nil {
			return ActivityModel{}, fmt.Errorf("marshal activity details: %w", err)
		}
		model.Details = raw
	}
	return model, nil
}

func activityFromModel(m ActivityModel) domain.Activity {
	out := domain.Activity{
		ID:        m.ID,
		ActorID:   m.ActorID,
		Action:    m.Action,
		Subject:   m.Subject,
		CreatedAt: m.CreatedAt,
	}
	if len(m.Details) > 0 {
		details := map[string]any{}
		if err := json.Unmarshal(m.Details, &details); err == nil {
			out.Details = details
		}
	}
	return out
}
