package assets

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AssetRecord is the canonical asset row as persisted by the ingest side.
// The gateway reads it; it never owns it.
type AssetRecord struct {
	Customer int    `gorm:"primaryKey;autoIncrement:false" json:"customer"`
	Space    int    `gorm:"primaryKey;autoIncrement:false" json:"space"`
	ID       string `gorm:"primaryKey;type:text" json:"id"`

	Family    string         `gorm:"type:text;not null;default:'image'" json:"family"`
	Origin    string         `gorm:"type:text;not null;default:''" json:"origin"`
	MediaType string         `gorm:"type:text;not null;default:''" json:"media_type"`
	Width     int            `gorm:"not null;default:0" json:"width"`
	Height    int            `gorm:"not null;default:0" json:"height"`
	Roles     datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"roles"`

	// Reference fields and dates drive named-query filtering.
	Reference1 string    `gorm:"type:text;not null;default:'';index" json:"reference1"`
	Reference2 string    `gorm:"type:text;not null;default:''" json:"reference2"`
	Reference3 string    `gorm:"type:text;not null;default:''" json:"reference3"`
	Number1    int64     `gorm:"not null;default:0" json:"number1"`
	Number2    int64     `gorm:"not null;default:0" json:"number2"`
	Number3    int64     `gorm:"not null;default:0" json:"number3"`
	Created    time.Time `gorm:"not null;default:now();index" json:"created"`

	Version int64 `gorm:"not null;default:0" json:"version"`
}

func (AssetRecord) TableName() string { return "assets" }

func (r *AssetRecord) AssetID() ID {
	return ID{Customer: r.Customer, Space: r.Space, Asset: r.ID}
}

// RoleList decodes the JSONB roles column; a broken column reads as open
// access rather than failing the request.
func (r *AssetRecord) RoleList() []string {
	if len(r.Roles) == 0 {
		return nil
	}
	var roles []string
	if err := json.Unmarshal(r.Roles, &roles); err != nil {
		return nil
	}
	return roles
}
