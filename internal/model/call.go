package model

import (
	"encoding/json"
	"time"
)

// Call status constants.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// Response format constants.
const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// validTransitions maps each status to the set of statuses it may transition to.
// A call leaves pending exactly once.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusTimeout:   true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a final call status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusTimeout
}

// Call is one API call issued through the JSONP transport.
type Call struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Method     string            `json:"method"`
	Params     map[string]string `json:"params,omitempty"`
	Format     string            `json:"format"`
	URL        string            `json:"url"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMS *int              `json:"duration_ms,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}
