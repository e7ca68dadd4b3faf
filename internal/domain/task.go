package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskStatus represents the review state of an earning task
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "PENDING"
	TaskStatusApproved TaskStatus = "APPROVED"
	TaskStatusRejected TaskStatus = "REJECTED"
)

// EarnTask represents a task whose approval credits a reward to the owner's
// task wallet and triggers upline commissions.
type EarnTask struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Title      string
	Reward     decimal.Decimal
	Status     TaskStatus
	CreatedAt  time.Time
	ApprovedAt *time.Time
}
