package projections

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusInProcess Status = "in_process"
	StatusAvailable Status = "available"
	StatusNotFound  Status = "not_found"
	StatusError     Status = "error"
)

// Key identifies one generated derivative of a named-query result set.
type Key struct {
	Customer  int
	QueryName string
	Args      []string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%s", k.Customer, k.QueryName, k.ArgsHash())
}

// ArgsHash collapses the raw args into a stable storage-safe token.
func (k Key) ArgsHash() string {
	sum := sha256.Sum256([]byte(strings.Join(k.Args, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// Record is the persisted metadata for a generated projection; the bytes
// themselves live in the content store under StorageKey.
type Record struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Customer  int    `gorm:"not null;index:idx_projection_key,unique,priority:1" json:"customer"`
	QueryName string `gorm:"type:text;not null;index:idx_projection_key,unique,priority:2" json:"query_name"`
	ArgsHash  string `gorm:"type:text;not null;index:idx_projection_key,unique,priority:3" json:"args_hash"`

	Version     int64  `gorm:"not null;default:0" json:"version"`
	Status      Status `gorm:"type:text;not null;default:'unknown'" json:"status"`
	StorageKey  string `gorm:"type:text;not null;default:''" json:"storage_key"`
	SizeBytes   int64  `gorm:"not null;default:0" json:"size_bytes"`
	ContentHash string `gorm:"type:text;not null;default:''" json:"content_hash"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Record) TableName() string { return "projections" }
