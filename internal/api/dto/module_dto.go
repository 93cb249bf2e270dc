package dto

import "github.com/spec-kit/queue-service/internal/display"

// ModuleResponse is the operator view of one module.
type ModuleResponse struct {
	Module      display.ModuleView `json:"module"`
	NextWaiting string             `json:"next_waiting,omitempty"`
	Waiting     int                `json:"waiting"`
	Version     int64              `json:"version"`
}

// ResetResponse reports a reset.
type ResetResponse struct {
	Version    int64  `json:"version"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// StateResponse acknowledges a state-changing module or admin action.
type StateResponse struct {
	Version       int64                `json:"version"`
	Modules       []display.ModuleView `json:"modules"`
	TotalWaiting  int                  `json:"total_waiting"`
	ActiveModules int                  `json:"active_modules"`
}
