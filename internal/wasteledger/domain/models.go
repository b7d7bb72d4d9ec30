package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionNew = "new"
	ActionAdd = "add"
)

// Entry is one reusable-waste material held for a user. At most one entry
// exists per (owner_id, normalized_name).
type Entry struct {
	ID                 snowflake.ID                      `gorm:"primaryKey" json:"id"`
	OwnerID            snowflake.ID                      `gorm:"not null;uniqueIndex:ux_waste_ledger_owner_name,priority:1" json:"ownerId"`
	MaterialName       string                            `gorm:"not null" json:"materialName"`
	NormalizedName     string                            `gorm:"not null;uniqueIndex:ux_waste_ledger_owner_name,priority:2" json:"-"`
	QuantityValue      float64                           `gorm:"not null;default:0" json:"quantityValue"`
	QuantityUnit       *string                           `json:"quantityUnit"`
	SourceItemName     string                            `gorm:"not null;default:''" json:"sourceItemName"`
	SourceCategory     string                            `gorm:"not null;default:''" json:"sourceCategory"`
	LastSourceQuantity float64                           `gorm:"not null;default:0" json:"lastSourceQuantity"`
	Metadata           datatypes.JSONType[EntryMetadata] `json:"metadata"`
	CreatedAt          time.Time                         `gorm:"not null" json:"createdAt"`
	UpdatedAt          time.Time                         `gorm:"not null" json:"updatedAt"`
}

func (Entry) TableName() string { return "waste_ledger_entries" }

type EntryMetadata struct {
	LastAction string  `json:"last_action,omitempty"`
	Model      string  `json:"model,omitempty"`
	SourceUnit *string `json:"source_unit,omitempty"`
}

// Normalize is the ledger match key.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Recommendation is a filtered inference item ready to merge.
type Recommendation struct {
	Name          string
	QuantityValue float64
	QuantityUnit  *string
	Action        string
}

// Provenance describes the usage event a merge originates from.
type Provenance struct {
	SourceItemName string
	SourceCategory string
	SourceQuantity float64
	SourceUnit     *string
	Model          string
}

// AppliedChange reports what a merge did for one material.
type AppliedChange struct {
	Name          string  `json:"name"`
	QuantityValue float64 `json:"quantityValue"`
	QuantityUnit  *string `json:"quantityUnit"`
	Action        string  `json:"action"`
}

type ReconcileResult struct {
	Applied []AppliedChange `json:"recommendations"`
	Ledger  []*Entry        `json:"ledger"`
}
