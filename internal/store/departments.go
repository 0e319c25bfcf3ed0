package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lherron/dirsync/internal/domain"
)

// DepartmentStore handles sys_dept persistence.
type DepartmentStore struct {
	store *Store
}

// List returns every department row, including disabled ones, ordered by id.
// A malformed ancestors value reads as an empty path so the next sync
// rewrites it.
func (ds *DepartmentStore) List(ctx context.Context) ([]domain.TargetDepartment, error) {
	rows, err := ds.store.db.QueryContext(ctx, `
		SELECT dept_id, parent_id, ancestors, dept_name, level, feishu_dept_id, create_by
		FROM sys_dept
		ORDER BY dept_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query departments: %w", err)
	}
	defer rows.Close()

	var out []domain.TargetDepartment
	for rows.Next() {
		var (
			d          domain.TargetDepartment
			parentID   sql.NullInt64
			ancestors  sql.NullString
			name       sql.NullString
			level      sql.NullInt64
			externalID sql.NullString
			createBy   sql.NullString
		)
		if err := rows.Scan(&d.InternalID, &parentID, &ancestors, &name, &level, &externalID, &createBy); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		d.ParentInternalID = idOrNil(parentID)
		d.Name = name.String
		d.Level = int(level.Int64)
		d.Provenance = createBy.String
		if externalID.Valid && externalID.String != "" {
			ext := externalID.String
			d.ExternalID = &ext
		}
		path, err := domain.ParseAncestorPath(ancestors.String)
		if err != nil {
			path = domain.AncestorPath{}
		}
		d.AncestorPath = path
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read departments: %w", err)
	}
	return out, nil
}

// Insert creates a department row and returns its assigned dept_id.
func (ds *DepartmentStore) Insert(ctx context.Context, d domain.TargetDepartment) (int64, error) {
	s := ds.store
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var parentID int64
		if d.ParentInternalID != nil {
			parentID = *d.ParentInternalID
		}
		var externalID interface{}
		if d.ExternalID != nil {
			externalID = *d.ExternalID
		}
		provenance := d.Provenance
		if provenance == "" {
			provenance = s.provenance
		}
		now := s.now()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO sys_dept (
				parent_id, ancestors, dept_name, order_num, level, feishu_dept_id,
				status, del_flag, create_by, create_time, update_by, update_time
			)
			VALUES (?, ?, ?, 0, ?, ?, '0', '0', ?, ?, ?, ?)
		`,
			parentID,
			d.AncestorPath.Encode(),
			d.Name,
			d.Level,
			externalID,
			provenance, now,
			provenance, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert department: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		return nil
	})
	return id, err
}

// UpdateFields applies the given domain.Field* values to one department.
func (ds *DepartmentStore) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	cols, args, err := departmentColumns(fields)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	s := ds.store
	return s.withTx(ctx, func(tx *sql.Tx) error {
		set, args := s.setClause(cols, args)
		res, err := tx.ExecContext(ctx, "UPDATE sys_dept SET "+set+" WHERE dept_id = ?", append(args, id)...)
		if err != nil {
			return fmt.Errorf("failed to update department %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("department not found: %d", id)
		}
		return nil
	})
}

// departmentColumns translates field names into columns in a fixed order.
func departmentColumns(fields map[string]interface{}) ([]string, []interface{}, error) {
	var cols []string
	var args []interface{}
	for _, f := range []string{domain.FieldName, domain.FieldParent, domain.FieldLevel, domain.FieldAncestorPath} {
		v, ok := fields[f]
		if !ok {
			continue
		}
		switch f {
		case domain.FieldName:
			name, ok := v.(string)
			if !ok {
				return nil, nil, fmt.Errorf("field %s: expected string, got %T", f, v)
			}
			cols, args = append(cols, "dept_name"), append(args, name)
		case domain.FieldParent:
			parent, ok := v.(*int64)
			if !ok {
				return nil, nil, fmt.Errorf("field %s: expected *int64, got %T", f, v)
			}
			var parentID int64
			if parent != nil {
				parentID = *parent
			}
			cols, args = append(cols, "parent_id"), append(args, parentID)
		case domain.FieldLevel:
			level, ok := v.(int)
			if !ok {
				return nil, nil, fmt.Errorf("field %s: expected int, got %T", f, v)
			}
			cols, args = append(cols, "level"), append(args, level)
		case domain.FieldAncestorPath:
			path, ok := v.(domain.AncestorPath)
			if !ok {
				return nil, nil, fmt.Errorf("field %s: expected AncestorPath, got %T", f, v)
			}
			cols, args = append(cols, "ancestors"), append(args, path.Encode())
		}
	}
	for f := range fields {
		switch f {
		case domain.FieldName, domain.FieldParent, domain.FieldLevel, domain.FieldAncestorPath:
		default:
			return nil, nil, fmt.Errorf("unknown department field: %s", f)
		}
	}
	return cols, args, nil
}
