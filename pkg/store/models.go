package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	FullName     string    `gorm:"not null"`
	Role         string    `gorm:"not null;index"`
	TeamID       *int64    `gorm:"index"`
	IsActive     bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

// TeamModel stores teams. The unique index on Theme keeps two teams from ever
// holding the same topic; NULLs do not collide.
type TeamModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Name           string    `gorm:"uniqueIndex;not null"`
	Theme          *string   `gorm:"uniqueIndex"`
	SubTheme       *string   `gorm:"type:text"`
	SubThemeStatus *string   `gorm:"index"`
	LogoKey        *string   `gorm:"column:logo_key"`
	Status         string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time
}

type DocumentModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	TeamID       int64     `gorm:"not null;index"`
	Filename     string    `gorm:"not null"`
	StorageKey   string    `gorm:"uniqueIndex;not null"`
	UploadedBy   *int64    `gorm:"index"`
	Status       string    `gorm:"not null;index"`
	AdminComment *string   `gorm:"type:text"`
	SizeBytes    int64     `gorm:"not null"`
	PageCount    int       `gorm:"not null"`
	UploadedAt   time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time
}

type ActivityModel struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	ActorID   *int64         `gorm:"index"`
	Action    string         `gorm:"not null;index"`
	Subject   string         `gorm:"not null"`
	Details   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}
