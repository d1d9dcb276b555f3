package auth

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a dashboard identity. Boolean columns carry no database default so
// that an explicit false is written as false.
type User struct {
	UserID             string    `gorm:"primaryKey" json:"user_id"`
	Username           string    `gorm:"not null;uniqueIndex:users_username_unique" json:"username"`
	Email              string    `gorm:"not null" json:"email"`
	PasswordHash       string    `gorm:"not null" json:"-"`
	Role               string    `gorm:"not null;default:'user'" json:"role"`
	IsActive           bool      `gorm:"not null" json:"is_active"`
	IsVerified         bool      `gorm:"not null" json:"is_verified"`
	IsDemo             bool      `gorm:"not null" json:"is_demo"`
	MustChangePassword bool      `gorm:"not null" json:"must_change_password"`
	WorkspaceID        uuid.UUID `gorm:"type:uuid" json:"workspace_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is the stored form of utils.SessionData.
type Session struct {
	SessionID           string    `gorm:"primaryKey" json:"-"`
	UserID              string    `gorm:"index" json:"-"`
	Username            string    `gorm:"not null"`
	AdminLoggedIn       bool      `gorm:"not null"`
	AuthSource          string    `gorm:"not null;default:''"`
	IsAdmin             bool      `gorm:"not null"`
	IsDemo              bool      `gorm:"not null"`
	IsDemoMode          bool      `gorm:"not null"`
	IsVerified          bool      `gorm:"not null"`
	ForceChangePassword bool      `gorm:"not null"`
	ClientIP            string
	CreatedAt           time.Time
	ExpiresAt           time.Time `gorm:"not null;index"`
}

func (Session) TableName() string { return "app_auth.sessions" }
func (User) TableName() string    { return "app_auth.users" }
