package queries

import (
	"time"

	"gorm.io/gorm"

	"github.com/mediabridge/asset-gateway/internal/domain/assets"
)

// NamedQuery is a per-customer template row mapping URL arguments onto an
// asset filter.
type NamedQuery struct {
	Customer int    `gorm:"primaryKey;autoIncrement:false" json:"customer"`
	Name     string `gorm:"primaryKey;type:text" json:"name"`

	Template string `gorm:"type:text;not null;default:''" json:"template"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (NamedQuery) TableName() string { return "named_queries" }

// ParsedQuery is the structured form of a template applied to caller args.
// Faulty is set when the args cannot satisfy the template; a faulty parse
// is never executed.
type ParsedQuery struct {
	Customer int
	Name     string
	Args     []string

	Space     *int
	String1   string
	String2   string
	String3   string
	Number1   *int64
	Number2   *int64
	Number3   *int64
	MinDate   *time.Time
	MaxDate   *time.Time

	Faulty bool
}

// Result pairs a parsed query with its ordered matches. Empty marks the
// missing-template sentinel, distinct from a valid zero-match result and
// from a faulty parse.
type Result struct {
	Query   *ParsedQuery
	Matches []*assets.AssetRecord
	Empty   bool
}

// EmptyResult is returned when no template exists for (customer, name).
func EmptyResult() *Result { return &Result{Empty: true} }
