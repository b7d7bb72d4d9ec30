package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusCompleted, StatusCancelled},
	StatusScheduled: {StatusCompleted, StatusCancelled},
}

// ParseStatus accepts only the four pickup states, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusScheduled, StatusCompleted, StatusCancelled:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// SnapshotItem is a ledger entry frozen at pickup creation.
type SnapshotItem struct {
	EntryID        snowflake.ID `json:"entryId"`
	Name           string       `json:"name"`
	QuantityValue  float64      `json:"quantityValue"`
	QuantityUnit   *string      `json:"quantityUnit"`
	WeightGrams    float64      `json:"weightGrams"`
	SourceItemName string       `json:"sourceItemName"`
	SourceCategory string       `json:"sourceCategory"`
}

type Request struct {
	ID               snowflake.ID                      `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID                      `gorm:"not null;index:ix_waste_pickup_user_requested,priority:1" json:"userId"`
	Status           Status                            `gorm:"type:varchar(16);not null;index" json:"status"`
	TotalItems       int                               `gorm:"not null" json:"totalItems"`
	TotalQuantity    float64                           `gorm:"not null" json:"totalQuantity"`
	TotalWeightGrams float64                           `gorm:"not null" json:"totalWeightGrams"`
	RewardPoints     int64                             `gorm:"not null" json:"rewardPoints"`
	WasteSnapshot    datatypes.JSONSlice[SnapshotItem] `gorm:"not null" json:"wasteSnapshot"`
	ContactName      string                            `gorm:"not null;default:''" json:"contactName"`
	ContactPhone     string                            `gorm:"not null;default:''" json:"contactPhone"`
	ContactLocation  string                            `gorm:"not null;default:''" json:"contactLocation"`
	RequestedAt      time.Time                         `gorm:"not null;index:ix_waste_pickup_user_requested,priority:2" json:"requestedAt"`
	CompletedAt      *time.Time                        `json:"completedAt"`
	AdminID          *snowflake.ID                     `json:"adminId"`
	UpdatedAt        time.Time                         `gorm:"not null" json:"updatedAt"`
}

func (Request) TableName() string { return "waste_pickup_requests" }
