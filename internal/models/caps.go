package models

import "github.com/google/uuid"

// Cap levels
const (
	CapLevelNone = "none"
	CapLevelSoft = "soft"
	CapLevelHard = "hard"
)

// CapCheckResult is the decision returned by the safety-cap stored
// procedures plus the engine's wrapper. ViolationID is ledger-assigned
// so duplicate admin notifications can be deduplicated upstream.
type CapCheckResult struct {
	Allowed      bool       `json:"allowed"`
	CapLevel     string     `json:"cap_level"`
	ViolationID  *uuid.UUID `json:"violation_id,omitempty"`
	CurrentValue *int64     `json:"current_value,omitempty"`
	LimitValue   *int64     `json:"limit_value,omitempty"`
	Message      *string    `json:"message,omitempty"`
}
