package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/lherron/dirsync/internal/bulk"
	"github.com/lherron/dirsync/internal/domain"
	"github.com/lherron/dirsync/internal/plan"
)

// userWrite is a planned user action and the write that carries it out.
type userWrite struct {
	action plan.Action
	insert *domain.NewUser
	fields map[string]interface{}
}

// reconcileUsers plans every user sequentially, then executes the writes on
// the worker pool. Actions are recorded in snapshot order.
func (r *run) reconcileUsers(ctx context.Context, users []domain.SourceUser) {
	planned := r.planUsers(users)

	keys := make([]string, len(planned))
	for i, p := range planned {
		keys[i] = p.action.Key
	}

	op := &bulk.Operation{Jobs: r.opts.Workers, ContinueOnError: true}
	res := op.Execute(ctx, keys, func(ctx context.Context, i int) error {
		return r.executeUser(ctx, &planned[i])
	})
	// Errors come back in snapshot order whatever the completion order was.
	for _, e := range res.Errors {
		r.fail(&planned[e.Index].action, e.Error)
	}

	for _, p := range planned {
		r.record(p.action)
	}
}

func (r *run) executeUser(ctx context.Context, p *userWrite) error {
	switch p.action.Kind {
	case plan.KindInsert:
		id, err := r.w.insertUser(ctx, *p.insert)
		if err != nil {
			return err
		}
		p.action.InternalID = id
	case plan.KindUpdate:
		return r.w.updateUser(ctx, p.action.InternalID, p.fields)
	}
	return nil
}

func (r *run) planUsers(users []domain.SourceUser) []userWrite {
	protected := make(map[string]bool, len(r.opts.ProtectedLogins))
	for _, login := range r.opts.ProtectedLogins {
		protected[login] = true
	}

	seen := make(map[string]bool, len(users))
	planned := make([]userWrite, 0, len(users))

	for i, u := range users {
		u.ExternalID = strings.TrimSpace(u.ExternalID)
		if err := domain.ValidateSourceUser(u); err != nil {
			r.warn(plan.Warning{
				Code:    plan.WarnMissingUserKey,
				Entity:  plan.EntityUser,
				Message: fmt.Sprintf("user record %d (%s) skipped: %v", i+1, u.DisplayName, err),
			})
			continue
		}
		if seen[u.ExternalID] {
			r.warn(plan.Warning{
				Code:    plan.WarnDuplicateSourceUser,
				Entity:  plan.EntityUser,
				Key:     u.ExternalID,
				Message: fmt.Sprintf("duplicate user %s in snapshot; first record kept", u.ExternalID),
			})
			continue
		}
		seen[u.ExternalID] = true

		if protected[u.ExternalID] {
			r.warn(plan.Warning{
				Code:    plan.WarnProtectedLogin,
				Entity:  plan.EntityUser,
				Key:     u.ExternalID,
				Message: fmt.Sprintf("login %s is protected and was not synced", u.ExternalID),
			})
			planned = append(planned, userWrite{action: plan.Action{
				Entity: plan.EntityUser,
				Kind:   plan.KindSkipped,
				Key:    u.ExternalID,
				Name:   normalizeName(u.DisplayName),
				Reason: "protected login",
			}})
			continue
		}

		planned = append(planned, r.planUser(u))
	}
	return planned
}

func (r *run) resolveUserDepartment(u domain.SourceUser) *int64 {
	deptKey := strings.TrimSpace(u.DepartmentExternalID)
	if m, ok := r.mapping[deptKey]; ok && deptKey != "" {
		id := m.id
		return &id
	}

	msg := fmt.Sprintf("user %s: department %s not resolved; department left empty", u.ExternalID, deptKey)
	if deptKey == "" {
		msg = fmt.Sprintf("user %s has no department; department left empty", u.ExternalID)
	}
	r.warn(plan.Warning{
		Code:    plan.WarnUnresolvedDepartment,
		Entity:  plan.EntityUser,
		Key:     u.ExternalID,
		Message: msg,
	})
	return nil
}

func (r *run) planUser(u domain.SourceUser) userWrite {
	name := normalizeName(u.DisplayName)
	email := strings.TrimSpace(u.Email)
	auditKey := strings.TrimSpace(u.UnionKey)
	deptID := r.resolveUserDepartment(u)

	action := plan.Action{Entity: plan.EntityUser, Key: u.ExternalID, Name: name}

	existing, matched := r.userIx.match(u.ExternalID)
	if !matched {
		action.Kind = plan.KindInsert
		action.Changes = []plan.FieldChange{{Field: domain.FieldDisplayName, New: name}}
		if email != "" {
			action.Changes = append(action.Changes, plan.FieldChange{Field: domain.FieldEmail, New: email})
		}
		if deptID != nil {
			action.Changes = append(action.Changes, plan.FieldChange{Field: domain.FieldDepartment, New: r.renderDept(deptID)})
		}
		if auditKey != "" {
			action.Changes = append(action.Changes, plan.FieldChange{Field: domain.FieldAuditKey, New: auditKey})
		}
		return userWrite{
			action: action,
			insert: &domain.NewUser{
				TargetUser: domain.TargetUser{
					LoginName:            u.ExternalID,
					DisplayName:          name,
					Email:                email,
					DepartmentInternalID: deptID,
					AuditKey:             auditKey,
					Provenance:           r.opts.Provenance,
				},
				RoleID:       r.opts.DefaultRoleID,
				PasswordHash: r.opts.PasswordHash,
			},
		}
	}

	action.InternalID = existing.InternalID
	fields := map[string]interface{}{}

	if normalizeName(existing.DisplayName) != name {
		action.Changes = append(action.Changes, plan.FieldChange{Field: domain.FieldDisplayName, Old: existing.DisplayName, New: name})
		fields[domain.FieldDisplayName] = name
	}
	if strings.TrimSpace(existing.Email) != email {
		action.Changes = append(action.Changes, plan.FieldChange{Field: domain.FieldEmail, Old: existing.Email, New: email})
		fields[domain.FieldEmail] = email
	}
	if !sameID(existing.DepartmentInternalID, deptID) {
		action.Changes = append(action.Changes, plan.FieldChange{
			Field: domain.FieldDepartment,
			Old:   r.renderDept(existing.DepartmentInternalID),
			New:   r.renderDept(deptID),
		})
		fields[domain.FieldDepartment] = deptID
	}
	// Written for traceability only; never consulted for matching.
	if strings.TrimSpace(existing.AuditKey) != auditKey {
		action.Changes = append(action.Changes, plan.FieldChange{Field: domain.FieldAuditKey, Old: existing.AuditKey, New: auditKey})
		fields[domain.FieldAuditKey] = auditKey
	}

	if len(fields) == 0 {
		action.Kind = plan.KindNoOp
		return userWrite{action: action}
	}
	action.Kind = plan.KindUpdate
	return userWrite{action: action, fields: fields}
}
