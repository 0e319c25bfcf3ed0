// Package reconcile turns a directory snapshot into department and user
// writes against the admin system's tables.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/lherron/dirsync/internal/domain"
	"github.com/lherron/dirsync/internal/events"
	"github.com/lherron/dirsync/internal/plan"
)

// Source supplies the directory snapshot for one run.
type Source interface {
	ListDepartments(ctx context.Context) ([]domain.SourceDepartment, error)
	ListUsers(ctx context.Context) ([]domain.SourceUser, error)
}

// Target is the admin system's store. Update field maps are keyed by the
// domain.Field* names.
type Target interface {
	ListDepartments(ctx context.Context) ([]domain.TargetDepartment, error)
	ListUsers(ctx context.Context) ([]domain.TargetUser, error)
	InsertDepartment(ctx context.Context, d domain.TargetDepartment) (int64, error)
	UpdateDepartment(ctx context.Context, id int64, fields map[string]interface{}) error
	InsertUser(ctx context.Context, u domain.NewUser) (int64, error)
	UpdateUser(ctx context.Context, id int64, fields map[string]interface{}) error
}

// DefaultRoleID is the admin system's "common user" role.
const DefaultRoleID int64 = 2

// Options configures a run.
type Options struct {
	DryRun          bool
	RunID           string
	DefaultRoleID   int64
	PasswordHash    string
	Provenance      string
	AnchorID        *int64
	ProtectedLogins []string
	Workers         int
	Logger          logrus.FieldLogger
	Events          *events.Writer
	Now             func() time.Time
}

// Engine runs reconciliations.
type Engine struct {
	source Source
	target Target
	opts   Options
}

// New creates an engine. Zero-valued options get their defaults.
func New(source Source, target Target, opts Options) *Engine {
	if opts.DefaultRoleID == 0 {
		opts.DefaultRoleID = DefaultRoleID
	}
	if opts.Provenance == "" {
		opts.Provenance = "dirsync"
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	return &Engine{source: source, target: target, opts: opts}
}

// mappedDept is the target identity a source department resolved to.
type mappedDept struct {
	id    int64
	level int
	path  domain.AncestorPath
}

// run holds the state of one reconciliation.
type run struct {
	opts   Options
	w      writer
	log    logrus.FieldLogger
	deptIx *departmentIndex
	userIx *userIndex
	anchor *domain.TargetDepartment

	mapping map[string]mappedDept
	keyByID map[int64]string

	mu       sync.Mutex
	actions  []plan.Action
	warnings []plan.Warning
	failures []plan.Failure
	errs     *multierror.Error
}

// Run reconciles the source snapshot into the target. The returned summary
// is always populated when the snapshot could be read, even if err is
// non-nil. err carries the *domain.FatalInputError of an aborted department
// phase and every *domain.WriteError.
func (e *Engine) Run(ctx context.Context) (*plan.Summary, error) {
	opts := e.opts
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	mode := plan.ModeApply
	if opts.DryRun {
		mode = plan.ModeDryRun
	}
	summary := &plan.Summary{RunID: opts.RunID, Mode: mode, StartedAt: opts.Now().UTC()}
	log := opts.Logger.WithFields(logrus.Fields{"run_id": opts.RunID, "mode": mode})

	srcDepts, err := e.source.ListDepartments(ctx)
	if err != nil {
		return nil, &domain.SourceError{Err: fmt.Errorf("failed to list source departments: %w", err)}
	}
	srcUsers, err := e.source.ListUsers(ctx)
	if err != nil {
		return nil, &domain.SourceError{Err: fmt.Errorf("failed to list source users: %w", err)}
	}
	tgtDepts, err := e.target.ListDepartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list target departments: %w", err)
	}
	tgtUsers, err := e.target.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list target users: %w", err)
	}
	log.WithFields(logrus.Fields{
		"source_departments": len(srcDepts),
		"source_users":       len(srcUsers),
		"target_departments": len(tgtDepts),
		"target_users":       len(tgtUsers),
	}).Info("snapshot loaded")

	r := &run{
		opts:    opts,
		log:     log,
		deptIx:  newDepartmentIndex(tgtDepts),
		userIx:  newUserIndex(tgtUsers),
		mapping: make(map[string]mappedDept, len(tgtDepts)+len(srcDepts)),
		keyByID: make(map[int64]string, len(tgtDepts)+len(srcDepts)),
	}
	if opts.DryRun {
		r.w = &dryRunWriter{}
	} else {
		r.w = &applyWriter{target: e.target}
	}

	if opts.AnchorID != nil {
		anchor, ok := r.deptIx.get(*opts.AnchorID)
		if !ok {
			return nil, fmt.Errorf("anchor department %d not found in target", *opts.AnchorID)
		}
		r.anchor = &anchor
	}

	// Last known-good mapping: what the target already links.
	for _, d := range tgtDepts {
		if d.ExternalID == nil || *d.ExternalID == "" {
			continue
		}
		if _, ok := r.mapping[*d.ExternalID]; ok {
			continue
		}
		r.remember(*d.ExternalID, mappedDept{id: d.InternalID, level: d.Level, path: d.AncestorPath})
	}

	if err := r.reconcileDepartments(ctx, srcDepts, summary); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.reconcileUsers(ctx, srcUsers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary.FinishedAt = opts.Now().UTC()
	summary.Warnings = nonNil(r.warnings)
	summary.Failures = r.failures
	if summary.Failures == nil {
		summary.Failures = []plan.Failure{}
	}
	summary.Actions = []plan.Action{}
	for _, a := range r.actions {
		if a.Kind != plan.KindNoOp {
			summary.Actions = append(summary.Actions, a)
		}
	}
	summary.Tally(r.actions)

	rev, err := plan.Rev(plan.FromSummary(summary))
	if err != nil {
		return nil, fmt.Errorf("failed to compute plan revision: %w", err)
	}
	summary.PlanRev = rev

	if !opts.DryRun {
		if err := opts.Events.LogRunFinished(summary); err != nil {
			log.WithError(err).Warn("failed to write audit event")
		}
	}
	log.WithFields(logrus.Fields{
		"plan_rev": rev,
		"duration": summary.Duration().String(),
	}).Info(plan.FormatText(summary))

	return summary, r.errs.ErrorOrNil()
}

func nonNil(ws []plan.Warning) []plan.Warning {
	if ws == nil {
		return []plan.Warning{}
	}
	return ws
}

// remember records the identity a department key resolved to.
func (r *run) remember(key string, m mappedDept) {
	r.mapping[key] = m
	r.keyByID[m.id] = key
}

func (r *run) warn(w plan.Warning) {
	r.mu.Lock()
	r.warnings = append(r.warnings, w)
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{
		"entity":      w.Entity,
		"external_id": w.Key,
		"code":        w.Code,
	}).Warn(w.Message)
}

// record appends an executed action and logs it.
func (r *run) record(a plan.Action) {
	r.actions = append(r.actions, a)
	r.report(a)
}

func (r *run) report(a plan.Action) {
	entry := r.log.WithFields(logrus.Fields{
		"phase":       a.Entity,
		"entity":      a.Entity,
		"external_id": a.Key,
		"kind":        a.Kind,
	})
	switch {
	case a.Failed:
		entry.WithField("error", a.Error).Error("write failed")
	case a.Kind == plan.KindNoOp:
		entry.Debug("unchanged")
	default:
		if changes := plan.FormatChanges(a.Changes); changes != "" {
			entry = entry.WithField("changes", changes)
		}
		entry.Info(a.Name)
	}

	if !r.opts.DryRun && a.Kind != plan.KindNoOp {
		if err := r.opts.Events.LogAction(a); err != nil {
			r.log.WithError(err).Warn("failed to write audit event")
		}
	}
}

// fail marks an action failed and records the write error.
func (r *run) fail(a *plan.Action, err error) {
	werr := &domain.WriteError{Entity: string(a.Entity), Key: a.Key, Op: string(a.Kind), Err: err}
	a.Failed = true
	a.Error = err.Error()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, plan.Failure{Entity: a.Entity, Kind: a.Kind, Key: a.Key, Error: a.Error})
	r.errs = multierror.Append(r.errs, werr)
}

func (r *run) fatal(err error) {
	r.errs = multierror.Append(r.errs, err)
}

// renderDept names a department by external key for reports. Departments
// without a key render as "#<internal id>".
func (r *run) renderDept(id *int64) string {
	if id == nil {
		return ""
	}
	if key, ok := r.keyByID[*id]; ok {
		return key
	}
	return "#" + strconv.FormatInt(*id, 10)
}

func (r *run) renderPath(p domain.AncestorPath) string {
	parts := make([]string, 0, len(p))
	for _, id := range p {
		id := id
		parts = append(parts, r.renderDept(&id))
	}
	return strings.Join(parts, "/")
}

// IsFatal reports whether err aborted the department phase.
func IsFatal(err error) bool {
	var fatal *domain.FatalInputError
	return errors.As(err, &fatal)
}

// HasWriteFailures reports whether err carries any failed write.
func HasWriteFailures(err error) bool {
	var werr *domain.WriteError
	return errors.As(err, &werr)
}
