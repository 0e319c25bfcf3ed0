package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lherron/dirsync/internal/domain"
)

func strPtr(s string) *string { return &s }
func idPtr(v int64) *int64 { return &v }

func dept(ext, name string, parent ...string) domain.SourceDepartment {
	d := domain.SourceDepartment{ExternalID: ext, Name: name}
	if len(parent) > 0 {
		d.ParentExternalID = strPtr(parent[0])
	}
	return d
}

type memSource struct {
	depts []domain.SourceDepartment
	users []domain.SourceUser
}

func (s *memSource) ListDepartments(context.Context) ([]domain.SourceDepartment, error) {
	return s.depts, nil
}

func (s *memSource) ListUsers(context.Context) ([]domain.SourceUser, error) {
	return s.users, nil
}

// memTarget is an in-memory Target with the same field semantics as the
// SQL store.
type memTarget struct {
	mu        sync.Mutex
	depts     map[int64]domain.TargetDepartment
	users     map[int64]domain.TargetUser
	roles     map[int64]int64
	passwords map[int64]string
	nextDept  int64
	nextUser  int64
	writes    int

	failDeptInsert map[string]bool
	failUserWrite  map[string]bool
}

func newMemTarget() *memTarget {
	return &memTarget{
		depts:          map[int64]domain.TargetDepartment{},
		users:          map[int64]domain.TargetUser{},
		roles:          map[int64]int64{},
		passwords:      map[int64]string{},
		nextDept:       100,
		nextUser:       1,
		failDeptInsert: map[string]bool{},
		failUserWrite:  map[string]bool{},
	}
}

func (m *memTarget) seedDept(d domain.TargetDepartment) {
	m.depts[d.InternalID] = d
	if d.InternalID >= m.nextDept {
		m.nextDept = d.InternalID + 1
	}
}

func (m *memTarget) seedUser(u domain.TargetUser) {
	m.users[u.InternalID] = u
	if u.InternalID >= m.nextUser {
		m.nextUser = u.InternalID + 1
	}
}

func (m *memTarget) ListDepartments(context.Context) ([]domain.TargetDepartment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TargetDepartment, 0, len(m.depts))
	for _, d := range m.depts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalID < out[j].InternalID })
	return out, nil
}

func (m *memTarget) ListUsers(context.Context) ([]domain.TargetUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TargetUser, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalID < out[j].InternalID })
	return out, nil
}

func (m *memTarget) InsertDepartment(_ context.Context, d domain.TargetDepartment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ExternalID != nil && m.failDeptInsert[*d.ExternalID] {
		return 0, errors.New("insert rejected")
	}
	m.writes++
	d.InternalID = m.nextDept
	m.nextDept++
	m.depts[d.InternalID] = d
	return d.InternalID, nil
}

func (m *memTarget) UpdateDepartment(_ context.Context, id int64, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depts[id]
	if !ok {
		return fmt.Errorf("department %d not found", id)
	}
	m.writes++
	for k, v := range fields {
		switch k {
		case domain.FieldName:
			d.Name = v.(string)
		case domain.FieldParent:
			d.ParentInternalID = v.(*int64)
		case domain.FieldLevel:
			d.Level = v.(int)
		case domain.FieldAncestorPath:
			d.AncestorPath = v.(domain.AncestorPath)
		default:
			return fmt.Errorf("unknown department field %q", k)
		}
	}
	m.depts[id] = d
	return nil
}

func (m *memTarget) InsertUser(_ context.Context, u domain.NewUser) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUserWrite[u.LoginName] {
		return 0, errors.New("insert rejected")
	}
	m.writes++
	row := u.TargetUser
	row.InternalID = m.nextUser
	m.nextUser++
	m.users[row.InternalID] = row
	m.roles[row.InternalID] = u.RoleID
	m.passwords[row.InternalID] = u.PasswordHash
	return row.InternalID, nil
}

func (m *memTarget) UpdateUser(_ context.Context, id int64, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %d not found", id)
	}
	if m.failUserWrite[u.LoginName] {
		return errors.New("update rejected")
	}
	m.writes++
	for k, v := range fields {
		switch k {
		case domain.FieldDisplayName:
			u.DisplayName = v.(string)
		case domain.FieldEmail:
			u.Email = v.(string)
		case domain.FieldDepartment:
			u.DepartmentInternalID = v.(*int64)
		case domain.FieldAuditKey:
			u.AuditKey = v.(string)
		default:
			return fmt.Errorf("unknown user field %q", k)
		}
	}
	m.users[id] = u
	return nil
}

func (m *memTarget) deptByExt(ext string) (domain.TargetDepartment, bool) {
	for _, d := range m.depts {
		if d.ExternalID != nil && *d.ExternalID == ext {
			return d, true
		}
	}
	return domain.TargetDepartment{}, false
}

func (m *memTarget) userByLogin(login string) (domain.TargetUser, bool) {
	for _, u := range m.users {
		if u.LoginName == login {
			return u, true
		}
	}
	return domain.TargetUser{}, false
}

// clone copies the target so dry-run and apply can start from the same state.
func (m *memTarget) clone() *memTarget {
	c := newMemTarget()
	c.nextDept, c.nextUser = m.nextDept, m.nextUser
	for k, v := range m.depts {
		c.depts[k] = v
	}
	for k, v := range m.users {
		c.users[k] = v
	}
	return c
}
