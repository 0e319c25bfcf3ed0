package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lherron/dirsync/internal/domain"
	"github.com/lherron/dirsync/internal/plan"
)

// normalizeName trims and NFC-normalizes a display string so that
// equivalent Unicode spellings never produce an update.
func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// reconcileDepartments runs the department phase level by level. Each
// level's writes complete before the next level is planned, so children
// always see their parent's assigned id. A fatal snapshot problem aborts
// the phase and leaves the mapping as derived from the target.
func (r *run) reconcileDepartments(ctx context.Context, depts []domain.SourceDepartment, summary *plan.Summary) error {
	h, err := buildHierarchy(depts, r.deptIx)
	if err != nil {
		var fatal *domain.FatalInputError
		if !errors.As(err, &fatal) {
			return err
		}
		summary.Fatal = &plan.Fatal{Kind: string(fatal.Kind), ExternalIDs: fatal.ExternalIDs, Message: fatal.Error()}
		r.fatal(fatal)
		r.warn(plan.Warning{
			Code:    plan.WarnDepartmentPhaseAborted,
			Entity:  plan.EntityDepartment,
			Message: fatal.Error() + "; users resolved against existing target departments",
		})
		return nil
	}

	for _, inv := range h.Invalid {
		r.warn(plan.Warning{
			Code:    plan.WarnMissingDepartmentKey,
			Entity:  plan.EntityDepartment,
			Key:     depts[inv.Order].ExternalID,
			Message: fmt.Sprintf("record %d skipped: %v", inv.Order+1, inv.Err),
		})
	}
	for _, o := range h.Orphans {
		msg := fmt.Sprintf("department %s skipped: parent %s not found in snapshot or target", o.ExternalID, o.MissingParent)
		if o.Inherited {
			msg = fmt.Sprintf("department %s skipped: ancestor parent %s not found in snapshot or target", o.ExternalID, o.MissingParent)
		}
		r.warn(plan.Warning{Code: plan.WarnOrphanDepartment, Entity: plan.EntityDepartment, Key: o.ExternalID, Message: msg})
	}

	for _, level := range h.Levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, n := range level {
			r.record(r.reconcileDepartment(ctx, n))
		}
	}
	return nil
}

// placement is where a department belongs in the target tree.
type placement struct {
	parentID *int64
	level    int
	path     domain.AncestorPath
}

// place computes a node's target parent, level and ancestor path from the
// identities resolved so far. ok is false when the parent was not created.
func (r *run) place(n Node) (placement, bool) {
	switch {
	case n.TargetParent != nil:
		id := n.TargetParent.InternalID
		return placement{parentID: &id, level: n.TargetParent.Level + 1, path: n.TargetParent.AncestorPath.Child(id)}, true
	case n.ParentKey == "":
		if r.anchor == nil {
			return placement{level: 0, path: domain.AncestorPath{}}, true
		}
		id := r.anchor.InternalID
		return placement{parentID: &id, level: 0, path: r.anchor.AncestorPath.Child(id)}, true
	default:
		m, ok := r.mapping[n.ParentKey]
		if !ok {
			return placement{}, false
		}
		id := m.id
		return placement{parentID: &id, level: m.level + 1, path: m.path.Child(id)}, true
	}
}

func (r *run) reconcileDepartment(ctx context.Context, n Node) plan.Action {
	key := n.Dept.ExternalID
	name := normalizeName(n.Dept.Name)
	action := plan.Action{Entity: plan.EntityDepartment, Key: key, Name: name}

	p, ok := r.place(n)
	if !ok {
		action.Kind = plan.KindSkipped
		action.Reason = fmt.Sprintf("parent %s was not created", n.ParentKey)
		r.warn(plan.Warning{
			Code:    plan.WarnParentNotCreated,
			Entity:  plan.EntityDepartment,
			Key:     key,
			Message: fmt.Sprintf("department %s skipped: parent %s was not created", key, n.ParentKey),
		})
		return action
	}
	level := p.level
	action.Level = &level

	existing, matched := r.deptIx.match(key)
	if !matched {
		action.Kind = plan.KindInsert
		action.Changes = []plan.FieldChange{{Field: domain.FieldName, New: name}}
		if p.parentID != nil {
			action.Changes = append(action.Changes, plan.FieldChange{Field: domain.FieldParent, New: r.renderDept(p.parentID)})
		}
		action.Changes = append(action.Changes, plan.FieldChange{Field: domain.FieldLevel, New: strconv.Itoa(p.level)})

		ext := key
		id, err := r.w.insertDepartment(ctx, domain.TargetDepartment{
			ExternalID:       &ext,
			Name:             name,
			ParentInternalID: p.parentID,
			Level:            p.level,
			AncestorPath:     p.path,
			Provenance:       r.opts.Provenance,
		})
		if err != nil {
			// Never enters the mapping; descendants are skipped.
			r.fail(&action, err)
			return action
		}
		action.InternalID = id
		r.remember(key, mappedDept{id: id, level: p.level, path: p.path})
		return action
	}

	action.InternalID = existing.InternalID
	changes, fields := r.diffDepartment(existing, name, p)
	if len(fields) == 0 {
		action.Kind = plan.KindNoOp
		r.remember(key, mappedDept{id: existing.InternalID, level: p.level, path: p.path})
		return action
	}

	action.Kind = plan.KindUpdate
	action.Changes = changes
	if err := r.w.updateDepartment(ctx, existing.InternalID, fields); err != nil {
		r.fail(&action, err)
		// Children keep resolving against what the store still holds.
		r.remember(key, mappedDept{id: existing.InternalID, level: existing.Level, path: existing.AncestorPath})
		return action
	}
	r.remember(key, mappedDept{id: existing.InternalID, level: p.level, path: p.path})
	return action
}

// diffDepartment compares a target row with its desired state. Level and
// ancestor path are always recomputed, never trusted from the row.
func (r *run) diffDepartment(existing domain.TargetDepartment, name string, p placement) ([]plan.FieldChange, map[string]interface{}) {
	var changes []plan.FieldChange
	fields := map[string]interface{}{}

	if normalizeName(existing.Name) != name {
		changes = append(changes, plan.FieldChange{Field: domain.FieldName, Old: existing.Name, New: name})
		fields[domain.FieldName] = name
	}
	if !sameID(existing.ParentInternalID, p.parentID) {
		changes = append(changes, plan.FieldChange{
			Field: domain.FieldParent,
			Old:   r.renderDept(existing.ParentInternalID),
			New:   r.renderDept(p.parentID),
		})
		fields[domain.FieldParent] = p.parentID
	}
	if existing.Level != p.level {
		changes = append(changes, plan.FieldChange{
			Field: domain.FieldLevel,
			Old:   strconv.Itoa(existing.Level),
			New:   strconv.Itoa(p.level),
		})
		fields[domain.FieldLevel] = p.level
	}
	if !existing.AncestorPath.Equal(p.path) {
		changes = append(changes, plan.FieldChange{
			Field: domain.FieldAncestorPath,
			Old:   r.renderPath(existing.AncestorPath),
			New:   r.renderPath(p.path),
		})
		fields[domain.FieldAncestorPath] = p.path
	}
	return changes, fields
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
