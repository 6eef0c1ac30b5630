package auth

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionUser is a bearer-token-keyed session record. The authorization
// collaborator writes these; the gateway reads them.
type SessionUser struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Customer int    `gorm:"not null;index:idx_session_customer_token,unique,priority:1" json:"customer"`
	Token    string `gorm:"type:text;not null;index:idx_session_customer_token,unique,priority:2" json:"token"`

	Roles datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"roles"`

	ExpiresAt time.Time      `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SessionUser) TableName() string { return "session_users" }

func (s *SessionUser) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

func (s *SessionUser) RoleList() []string {
	if len(s.Roles) == 0 {
		return nil
	}
	var roles []string
	if err := json.Unmarshal(s.Roles, &roles); err != nil {
		return nil
	}
	return roles
}

// HasAnyRole reports whether the session's role set intersects required.
func (s *SessionUser) HasAnyRole(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := s.RoleList()
	for _, r := range required {
		for _, h := range have {
			if r == h {
				return true
			}
		}
	}
	return false
}
