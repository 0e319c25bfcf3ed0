// Package plan models the actions a directory sync run decides on.
//
// It provides:
// - The action, warning and failure records produced by a run
// - Per-entity counts and run summaries
// - Canonical JSON and a content revision for comparing two runs
// - Text, markdown and unified-diff renderings
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Entity names the kind of record an action applies to.
type Entity string

const (
	EntityDepartment Entity = "department"
	EntityUser       Entity = "user"
)

// Kind is the decision taken for one source record.
type Kind string

const (
	KindInsert  Kind = "insert"
	KindUpdate  Kind = "update"
	KindNoOp    Kind = "noop"
	KindSkipped Kind = "skipped"
)

// Mode is how a run treats the target store.
type Mode string

const (
	ModeApply  Mode = "apply"
	ModeDryRun Mode = "dry-run"
)

// FieldChange is one field difference. Values referencing other records are
// rendered by external key so the same decision reads identically in dry-run
// and apply.
type FieldChange struct {
	Field string `json:"field" yaml:"field"`
	Old   string `json:"old,omitempty" yaml:"old,omitempty"`
	New   string `json:"new" yaml:"new"`
}

// Action is one decision for one source record.
type Action struct {
	Entity     Entity        `json:"entity" yaml:"entity"`
	Kind       Kind          `json:"kind" yaml:"kind"`
	Key        string        `json:"key" yaml:"key"`
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	InternalID int64         `json:"internal_id,omitempty" yaml:"internal_id,omitempty"`
	Level      *int          `json:"level,omitempty" yaml:"level,omitempty"`
	Changes    []FieldChange `json:"changes,omitempty" yaml:"changes,omitempty"`
	Reason     string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Failed     bool          `json:"failed,omitempty" yaml:"failed,omitempty"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Changed reports whether the action mutates (or would mutate) the target.
func (a Action) Changed() bool {
	return a.Kind == KindInsert || a.Kind == KindUpdate
}

// Warning codes.
const (
	WarnOrphanDepartment       = "orphan_department"
	WarnUnresolvedDepartment   = "unresolved_department_for_user"
	WarnDuplicateSourceUser    = "duplicate_source_user"
	WarnMissingUserKey         = "missing_user_key"
	WarnMissingDepartmentKey   = "missing_department_key"
	WarnProtectedLogin         = "protected_login"
	WarnDepartmentPhaseAborted = "department_phase_aborted"
	WarnParentNotCreated       = "parent_not_created"
)

// Warning is a non-fatal problem noticed while planning.
type Warning struct {
	Code    string `json:"code" yaml:"code"`
	Entity  Entity `json:"entity" yaml:"entity"`
	Key     string `json:"key,omitempty" yaml:"key,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// Failure is a write that the target store rejected.
type Failure struct {
	Entity Entity `json:"entity" yaml:"entity"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	Key    string `json:"key" yaml:"key"`
	Error  string `json:"error" yaml:"error"`
}

// Fatal describes a snapshot problem that aborted the department phase.
type Fatal struct {
	Kind        string   `json:"kind" yaml:"kind"`
	ExternalIDs []string `json:"external_ids" yaml:"external_ids"`
	Message     string   `json:"message" yaml:"message"`
}

// Counts tracks decisions for one entity.
type Counts struct {
	Insert   int `json:"insert" yaml:"insert"`
	Update   int `json:"update" yaml:"update"`
	NoOp     int `json:"noop" yaml:"noop"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Failures int `json:"failures" yaml:"failures"`
}

// Total returns the number of actions counted.
func (c Counts) Total() int {
	return c.Insert + c.Update + c.NoOp + c.Skipped
}

// Summary is the structured result of one run.
type Summary struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Mode        Mode      `json:"mode" yaml:"mode"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	PlanRev     string    `json:"plan_rev" yaml:"plan_rev"`
	Departments Counts    `json:"departments" yaml:"departments"`
	Users       Counts    `json:"users" yaml:"users"`
	Fatal       *Fatal    `json:"fatal,omitempty" yaml:"fatal,omitempty"`
	Actions     []Action  `json:"actions" yaml:"actions"`
	Warnings    []Warning `json:"warnings" yaml:"warnings"`
	Failures    []Failure `json:"failures" yaml:"failures"`
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// HasChanges reports whether any insert or update was decided.
func (s *Summary) HasChanges() bool {
	return s.Departments.Insert+s.Departments.Update+s.Users.Insert+s.Users.Update > 0
}

// Plan is the portable form of a run's decisions, saved by dry-runs and
// compared across runs.
type Plan struct {
	Rev      string    `json:"rev" yaml:"rev"`
	Mode     Mode      `json:"mode" yaml:"mode"`
	RunID    string    `json:"run_id" yaml:"run_id"`
	Fatal    *Fatal    `json:"fatal,omitempty" yaml:"fatal,omitempty"`
	Actions  []Action  `json:"actions" yaml:"actions"`
	Warnings []Warning `json:"warnings" yaml:"warnings"`
}

// FromSummary extracts the plan of a summary.
func FromSummary(s *Summary) *Plan {
	return &Plan{
		Rev:      s.PlanRev,
		Mode:     s.Mode,
		RunID:    s.RunID,
		Fatal:    s.Fatal,
		Actions:  s.Actions,
		Warnings: s.Warnings,
	}
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}

	return &p, nil
}

// Save writes a plan to a file.
func (p *Plan) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}

	return nil
}

// RevMismatchError is returned when a guarded apply sees a different plan
// than the one that was reviewed.
type RevMismatchError struct {
	Expected string
	Actual   string
}

func (e *RevMismatchError) Error() string {
	return fmt.Sprintf("plan revision mismatch: expected %s, got %s", e.Expected, e.Actual)
}
