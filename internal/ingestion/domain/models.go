package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wasteloop/internal/inference"
	"gorm.io/datatypes"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// Task is a durable queue entry for one usage event.
type Task struct {
	ID          snowflake.ID                             `gorm:"primaryKey"`
	UserID      snowflake.ID                             `gorm:"not null;index"`
	DedupeKey   string                                   `gorm:"type:varchar(64);not null;uniqueIndex:ux_waste_ingestion_dedupe"`
	Payload     datatypes.JSONType[inference.UsageEvent] `gorm:"not null"`
	Status      TaskStatus                               `gorm:"type:varchar(16);not null;index:ix_waste_ingestion_claim,priority:1"`
	Attempts    int                                      `gorm:"not null;default:0"`
	LastError   *string                                  `gorm:"type:text"`
	AvailableAt time.Time                                `gorm:"not null;index:ix_waste_ingestion_claim,priority:2"`
	LockedUntil *time.Time                               `gorm:"index"`
	CreatedAt   time.Time                                `gorm:"not null"`
	UpdatedAt   time.Time                                `gorm:"not null"`
}

func (Task) TableName() string { return "waste_ingestion_tasks" }
