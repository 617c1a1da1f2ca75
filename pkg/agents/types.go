// Package agents binds specialized reasoning roles to LLM calls. Each
// execution unit turns one assessment plus one role prompt into a set of
// recommendations, and always terminates in a result rather than an error.
package agents

import (
	"time"
)

// Role identifies a specialized reasoning unit.
type Role string

// The supported assessment concern areas.
const (
	RoleStrategy       Role = "strategy"
	RoleInfrastructure Role = "infrastructure"
	RoleCompliance     Role = "compliance"
	RoleResearch       Role = "research"
	RoleMLOps          Role = "mlops"
	RoleSecurity       Role = "security"
	RoleCost           Role = "cost"
)

// AllRoles returns every supported role in canonical order.
func AllRoles() []Role {
	return []Role{
		RoleStrategy,
		RoleInfrastructure,
		RoleCompliance,
		RoleResearch,
		RoleMLOps,
		RoleSecurity,
		RoleCost,
	}
}

// Valid reports whether the role is one of the supported concern areas.
func (r Role) Valid() bool {
	switch r {
	case RoleStrategy, RoleInfrastructure, RoleCompliance, RoleResearch, RoleMLOps, RoleSecurity, RoleCost:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of one execution unit. Transitions are
// monotonic: a terminal status (completed, failed, timeout) never reverts.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// Assessment is the read-only input under review. The hosting layer owns its
// schema; this core only threads it into prompts.
type Assessment struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Recommendation is one actionable finding. Title is the dedupe key during
// synthesis.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
}

// Result is the terminal outcome of one execution unit. Created when the
// unit starts and mutated only by that unit.
type Result struct {
	Role            Role             `json:"role"`
	Status          Status           `json:"status"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Confidence      float64          `json:"confidence"`
	ExecutionTime   time.Duration    `json:"execution_time"`
	Error           string           `json:"error,omitempty"`
}
