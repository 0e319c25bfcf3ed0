package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lherron/dirsync/internal/domain"
)

// UserStore handles sys_user and sys_user_role persistence.
type UserStore struct {
	store *Store
}

// List returns the users that are not soft-deleted, ordered by id.
func (us *UserStore) List(ctx context.Context) ([]domain.TargetUser, error) {
	rows, err := us.store.db.QueryContext(ctx, `
		SELECT user_id, user_name, nick_name, email, dept_id, feishu_union_id, create_by
		FROM sys_user
		WHERE del_flag = '0'
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []domain.TargetUser
	for rows.Next() {
		var (
			u                                  domain.TargetUser
			nickName, email, unionID, createBy sql.NullString
			deptID                             sql.NullInt64
		)
		if err := rows.Scan(&u.InternalID, &u.LoginName, &nickName, &email, &deptID, &unionID, &createBy); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.DisplayName = nickName.String
		u.Email = email.String
		u.DepartmentInternalID = idOrNil(deptID)
		u.AuditKey = unionID.String
		u.Provenance = createBy.String
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return out, nil
}

// Insert creates a user with its password sentinel and grants the role in
// the same transaction.
func (us *UserStore) Insert(ctx context.Context, u domain.NewUser) (int64, error) {
	s := us.store
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		provenance := u.Provenance
		if provenance == "" {
			provenance = s.provenance
		}
		now := s.now()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO sys_user (
				dept_id, user_name, nick_name, user_type, email, password,
				status, del_flag, create_by, create_time, update_by, update_time,
				feishu_union_id
			)
			VALUES (?, ?, ?, '00', ?, ?, '0', '0', ?, ?, ?, ?, ?)
		`,
			nullID(u.DepartmentInternalID),
			u.LoginName,
			u.DisplayName,
			u.Email,
			u.PasswordHash,
			provenance, now,
			provenance, now,
			u.AuditKey,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO sys_user_role (user_id, role_id) VALUES (?, ?)", id, u.RoleID); err != nil {
			return fmt.Errorf("failed to grant role %d: %w", u.RoleID, err)
		}
		return nil
	})
	return id, err
}

// UpdateFields applies the given domain.Field* values to one user.
func (us *UserStore) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	cols, args, err := userColumns(fields)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	s := us.store
	return s.withTx(ctx, func(tx *sql.Tx) error {
		set, args := s.setClause(cols, args)
		res, err := tx.ExecContext(ctx, "UPDATE sys_user SET "+set+" WHERE user_id = ?", append(args, id)...)
		if err != nil {
			return fmt.Errorf("failed to update user %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("user not found: %d", id)
		}
		return nil
	})
}

var userFieldColumns = map[string]string{
	domain.FieldDisplayName: "nick_name",
	domain.FieldEmail:       "email",
	domain.FieldAuditKey:    "feishu_union_id",
}

// userColumns translates field names into columns in a fixed order.
func userColumns(fields map[string]interface{}) ([]string, []interface{}, error) {
	for f := range fields {
		if _, ok := userFieldColumns[f]; !ok && f != domain.FieldDepartment {
			return nil, nil, fmt.Errorf("unknown user field: %s", f)
		}
	}

	var cols []string
	var args []interface{}
	for _, f := range []string{domain.FieldDisplayName, domain.FieldEmail, domain.FieldDepartment, domain.FieldAuditKey} {
		v, ok := fields[f]
		if !ok {
			continue
		}
		if f == domain.FieldDepartment {
			dept, ok := v.(*int64)
			if !ok {
				return nil, nil, fmt.Errorf("field %s: expected *int64, got %T", f, v)
			}
			cols, args = append(cols, "dept_id"), append(args, nullID(dept))
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, nil, fmt.Errorf("field %s: expected string, got %T", f, v)
		}
		cols, args = append(cols, userFieldColumns[f]), append(args, str)
	}
	return cols, args, nil
}
