package domain

import (
	"strings"
	"time"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleAdmin   UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// ParseUserRole parses a wire value into a role.
func ParseUserRole(raw string) (UserRole, bool) {
	role := UserRole(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// ReviewStatus is shared by sub-theme proposals and documents.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return true
	default:
		return false
	}
}

// IsDecision reports whether s is a reviewer outcome (approved or rejected).
func (s ReviewStatus) IsDecision() bool {
	return s == ReviewApproved || s == ReviewRejected
}

// ParseReviewStatus parses a wire value into a review status.
func ParseReviewStatus(raw string) (ReviewStatus, bool) {
	status := ReviewStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

type TeamStatus string

const (
	TeamActive    TeamStatus = "active"
	TeamCompleted TeamStatus = "completed"
)

func (s TeamStatus) Valid() bool {
	return s == TeamActive || s == TeamCompleted
}

// ParseTeamStatus parses a wire value into a team status.
func ParseTeamStatus(raw string) (TeamStatus, bool) {
	status := TeamStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	Role         UserRole  `json:"role"`
	TeamID       *int64    `json:"teamId"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin reports whether the user holds the privileged role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// InTeam reports whether the user belongs to teamID.
func (u User) InTeam(teamID int64) bool {
	return u.TeamID != nil && *u.TeamID == teamID
}

type Team struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Theme          *string       `json:"theme"`
	SubTheme       *string       `json:"subTheme"`
	SubThemeStatus *ReviewStatus `json:"subThemeStatus"`
	LogoKey        *string       `json:"-"`
	HasLogo        bool          `json:"hasLogo"`
	Status         TeamStatus    `json:"status"`
	MemberCount    int           `json:"memberCount"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// TeamDetail is a team together with its members.
type TeamDetail struct {
	Team
	Members []User `json:"members"`
}

type Document struct {
	ID           int64        `json:"id"`
	TeamID       int64        `json:"teamId"`
	Filename     string       `json:"filename"`
	StorageKey   string       `json:"-"`
	UploadedBy   *int64       `json:"uploadedBy"`
	UploaderName string       `json:"uploaderName,omitempty"`
	Status       ReviewStatus `json:"status"`
	AdminComment *string      `json:"adminComment"`
	SizeBytes    int64        `json:"sizeBytes"`
	PageCount    int          `json:"pageCount,omitempty"`
	UploadedAt   time.Time    `json:"uploadedAt"`
}

// Activity is one entry of the workflow audit trail.
type Activity struct {
	ID        int64          `json:"id"`
	ActorID   *int64         `json:"actorId"`
	Action    string         `json:"action"`
	Subject   string         `json:"subject"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// DashboardStats summarizes workflow progress for administrators.
type DashboardStats struct {
	TotalStudents     int `json:"totalStudents"`
	ActiveStudents    int `json:"activeStudents"`
	PendingStudents   int `json:"pendingStudents"`
	TotalTeams        int `json:"totalTeams"`
	TeamsWithTheme    int `json:"teamsWithTheme"`
	PendingSubThemes  int `json:"pendingSubThemes"`
	TotalDocuments    int `json:"totalDocuments"`
	PendingDocuments  int `json:"pendingDocuments"`
	ApprovedDocuments int `json:"approvedDocuments"`
	RejectedDocuments int `json:"rejectedDocuments"`
}
