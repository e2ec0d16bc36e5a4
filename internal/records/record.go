package records

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	ErrNotFound         = errors.New("generation record not found")
	ErrStatusTransition = errors.New("invalid generation status transition")
	ErrInvalidRecord    = errors.New("invalid generation record")
)

// Record is one persisted wizard run.
type Record struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	ReferenceImages    []string  `json:"reference_images"`
	SelectedStyle      string    `json:"selected_style"`
	SelectedBackground string    `json:"selected_background"`
	GeneratedImages    []string  `json:"generated_images"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Status          *Status
	GeneratedImages []string
}

type Query struct {
	UserID string
	Limit  int
}

type Store interface {
	Create(ctx context.Context, r Record) error
	Update(ctx context.Context, id string, p Patch) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, q Query) ([]Record, error)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a record may move from s to next. Status only
// moves forward: pending → processing → completed | failed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

func StatusPtr(s Status) *Status {
	return &s
}
