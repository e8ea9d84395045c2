package store

import (
	"context"
	"errors"

	"github.com/seantiz/edmunds/internal/model"
)

// ErrInvalidTransition is returned when a call status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// CallFilter narrows ListCalls. Empty fields match everything.
type CallFilter struct {
	Status string
	Method string
}

// CallStats holds aggregate call statistics.
type CallStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByMethod map[string]int `json:"count_by_method"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for the call history.
type Store interface {
	CreateCall(ctx context.Context, c *model.Call) error
	GetCall(ctx context.Context, id string) (*model.Call, error)
	ListCalls(ctx context.Context, f CallFilter, limit, offset int) ([]*model.Call, int, error)
	FinishCall(ctx context.Context, c *model.Call) error
	GetCallStats(ctx context.Context) (*CallStats, error)
	Close() error
}
