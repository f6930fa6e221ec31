package models

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Config represents the global configuration for the deployment
// This is a singleton model (only one row should exist)
type Config struct {
	BaseModel
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // Auto-generated on first start (64 hex chars)
}

// Roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents a local user account
type User struct {
	BaseModel
	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`
	Role         string `json:"role" gorm:"not null;default:user"`

	TwoFactorEnabled bool   `json:"twoFactorEnabled" gorm:"not null;default:false"`
	TwoFactorSecret  string `json:"-"`
	// PendingTwoFactorSecret is issued by setup and becomes TwoFactorSecret
	// once a code generated from it is accepted.
	PendingTwoFactorSecret string `json:"-"`

	EmailVerified bool      `json:"emailVerified" gorm:"not null;default:false"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeSave normalizes the login identifiers
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Username = strings.TrimSpace(u.Username)
	return nil
}

// Session stages
const (
	// StagePendingTwoFactor is a session whose password was accepted but
	// whose second factor is still outstanding.
	StagePendingTwoFactor = "pending_2fa"
	// StageActive is a fully verified session.
	StageActive = "active"
)

// Session is a server-side login record. Tokens reference it by ID, so
// deleting the row revokes every copy of the token.
type Session struct {
	BaseModel
	UserID     string    `json:"user_id" gorm:"index;not null"`
	Stage      string    `json:"stage" gorm:"not null"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"index;not null"`
	UserAgent  string    `json:"user_agent"`
	ClientIP   string    `json:"client_ip"`
	LastSeenAt time.Time `json:"last_seen_at"`
	// FailedAttempts counts rejected second-factor codes on a pending session.
	FailedAttempts int `json:"failed_attempts" gorm:"not null;default:0"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// Expired reports whether the session is no longer usable at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Verified reports whether the second factor (if any) was completed
func (s *Session) Verified() bool {
	return s.Stage == StageActive
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	// Collect all models
	models := []interface{}{
		&User{}, &Config{}, &Session{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
