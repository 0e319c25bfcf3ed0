// Package store maps the reconciliation engine's target operations onto the
// admin system's sys_dept, sys_user and sys_user_role tables, stamping
// provenance and timestamps on every write.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lherron/dirsync/internal/db"
	"github.com/lherron/dirsync/internal/domain"
)

// Store is the root store that provides access to the table-specific stores.
// It satisfies reconcile.Target.
type Store struct {
	db         *db.DB
	provenance string
	now        func() time.Time

	Departments *DepartmentStore
	Users       *UserStore
}

// New creates a new Store wrapping the given database connection. Rows
// written through it carry provenance in create_by/update_by.
func New(database *db.DB, provenance string) *Store {
	s := &Store{db: database, provenance: provenance, now: time.Now}
	s.Departments = &DepartmentStore{store: s}
	s.Users = &UserStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// setClause builds "a = ?, b = ?" for an UPDATE with the audit columns
// appended.
func (s *Store) setClause(cols []string, args []interface{}) (string, []interface{}) {
	cols = append(cols, "update_by", "update_time")
	args = append(args, s.provenance, s.now())
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " = ?"
	}
	return strings.Join(parts, ", "), args
}

// ListDepartments implements reconcile.Target.
func (s *Store) ListDepartments(ctx context.Context) ([]domain.TargetDepartment, error) {
	return s.Departments.List(ctx)
}

// InsertDepartment implements reconcile.Target.
func (s *Store) InsertDepartment(ctx context.Context, d domain.TargetDepartment) (int64, error) {
	return s.Departments.Insert(ctx, d)
}

// UpdateDepartment implements reconcile.Target.
func (s *Store) UpdateDepartment(ctx context.Context, id int64, fields map[string]interface{}) error {
	return s.Departments.UpdateFields(ctx, id, fields)
}

// ListUsers implements reconcile.Target.
func (s *Store) ListUsers(ctx context.Context) ([]domain.TargetUser, error) {
	return s.Users.List(ctx)
}

// InsertUser implements reconcile.Target.
func (s *Store) InsertUser(ctx context.Context, u domain.NewUser) (int64, error) {
	return s.Users.Insert(ctx, u)
}

// UpdateUser implements reconcile.Target.
func (s *Store) UpdateUser(ctx context.Context, id int64, fields map[string]interface{}) error {
	return s.Users.UpdateFields(ctx, id, fields)
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// idOrNil treats NULL and 0 as "no reference", the admin system's convention.
func idOrNil(v sql.NullInt64) *int64 {
	if !v.Valid || v.Int64 == 0 {
		return nil
	}
	id := v.Int64
	return &id
}
