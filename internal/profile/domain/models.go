package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserProfile is the subset of the consumer profile the waste pipeline reads
// and mutates. Rows are owned by the surrounding product.
type UserProfile struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	FullName               string       `gorm:"not null;default:''" json:"fullName"`
	Phone                  string       `gorm:"not null;default:''" json:"-"`
	Location               string       `gorm:"not null;default:''" json:"location"`
	BudgetAmount           *float64     `json:"budgetAmount,omitempty"`
	BudgetPeriod           string       `gorm:"not null;default:''" json:"budgetPeriod,omitempty"`
	AgrisenseEnabled       bool         `gorm:"not null;default:false;index" json:"agrisenseEnabled"`
	AgrisenseFarmerID      *string      `json:"agrisenseFarmerId,omitempty"`
	AgrisenseLastSyncedAt  *time.Time   `json:"agrisenseLastSyncedAt,omitempty"`
	AgrisenseSyncFailures  int          `gorm:"not null;default:0" json:"-"`
	AgrisenseNextAttemptAt *time.Time   `json:"-"`
	RewardPoints           int64        `gorm:"not null;default:0" json:"rewardPoints"`
	LedgerChangedAt        *time.Time   `json:"ledgerChangedAt,omitempty"`
	CreatedAt              time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt              time.Time    `gorm:"not null" json:"updatedAt"`
}

func (UserProfile) TableName() string { return "user_profiles" }

func (p *UserProfile) HasPhone() bool {
	return p != nil && strings.TrimSpace(p.Phone) != ""
}

// SyncActive reports whether partner mirroring applies to this profile.
func (p *UserProfile) SyncActive() bool {
	return p != nil && p.AgrisenseEnabled && p.HasPhone()
}

// BudgetContext renders the optional "<amount> per <period>" prompt hint.
func (p *UserProfile) BudgetContext() string {
	if p == nil || p.BudgetAmount == nil {
		return ""
	}
	period := strings.TrimSpace(p.BudgetPeriod)
	if period == "" {
		period = "month"
	}
	return strings.TrimSpace(formatAmount(*p.BudgetAmount) + " per " + period)
}
