package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SourceDepartment is a department record as supplied by the directory provider.
type SourceDepartment struct {
	ExternalID       string  `json:"external_id" yaml:"external_id"`
	Name             string  `json:"name" yaml:"name"`
	ParentExternalID *string `json:"parent_external_id,omitempty" yaml:"parent_external_id,omitempty"` // nil marks a root
	DeclaredLevel    *int    `json:"declared_level,omitempty" yaml:"declared_level,omitempty"`         // hint only, never copied
}

// IsRoot reports whether the record declares no parent.
func (d SourceDepartment) IsRoot() bool {
	return d.ParentExternalID == nil || *d.ParentExternalID == ""
}

// TargetDepartment is a row of the administrative system's department table.
type TargetDepartment struct {
	InternalID       int64        `json:"internal_id" db:"dept_id"`
	ExternalID       *string      `json:"external_id,omitempty" db:"feishu_dept_id"`
	Name             string       `json:"name" db:"dept_name"`
	ParentInternalID *int64       `json:"parent_internal_id,omitempty" db:"parent_id"`
	Level            int          `json:"level" db:"level"`
	AncestorPath     AncestorPath `json:"ancestor_path" db:"ancestors"`
	Provenance       string       `json:"provenance,omitempty" db:"create_by"`
}

// SourceUser is a user record as supplied by the directory provider.
type SourceUser struct {
	ExternalID           string `json:"external_id" yaml:"external_id"`
	DisplayName          string `json:"display_name" yaml:"display_name"`
	Email                string `json:"email" yaml:"email"`
	DepartmentExternalID string `json:"department_external_id" yaml:"department_external_id"`
	UnionKey             string `json:"union_key" yaml:"union_key"`
}

// TargetUser is a row of the administrative system's user table.
type TargetUser struct {
	InternalID           int64  `json:"internal_id" db:"user_id"`
	LoginName            string `json:"login_name" db:"user_name"`
	DisplayName          string `json:"display_name" db:"nick_name"`
	Email                string `json:"email" db:"email"`
	DepartmentInternalID *int64 `json:"department_internal_id,omitempty" db:"dept_id"`
	AuditKey             string `json:"audit_key" db:"feishu_union_id"`
	Provenance           string `json:"provenance" db:"create_by"`
}

// NewUser carries everything needed to create a target user.
type NewUser struct {
	TargetUser
	RoleID       int64
	PasswordHash string
}

// Department field names used in update sets.
const (
	FieldName         = "name"
	FieldParent       = "parent"
	FieldLevel        = "level"
	FieldAncestorPath = "ancestor_path"
)

// User field names used in update sets.
const (
	FieldDisplayName = "display_name"
	FieldEmail       = "email"
	FieldDepartment  = "department"
	FieldAuditKey    = "audit_key"
)

// AncestorPath is the ordered list of ancestor internal ids, root first.
// It excludes the node itself.
type AncestorPath []int64

// Child returns the path of a child whose parent has this path and the given id.
func (p AncestorPath) Child(parentID int64) AncestorPath {
	out := make(AncestorPath, 0, len(p)+1)
	out = append(out, p...)
	return append(out, parentID)
}

// Equal reports whether two paths hold the same ids in the same order.
func (p AncestorPath) Equal(other AncestorPath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Encode renders the path in the "ancestors" column format: a leading "0"
// followed by each ancestor id, comma separated ("0", "0,100", "0,100,101").
func (p AncestorPath) Encode() string {
	var b strings.Builder
	b.WriteString("0")
	for _, id := range p {
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}

// ParseAncestorPath parses the "ancestors" column format. An empty string
// parses as an empty path so legacy rows without ancestors get repaired.
func ParseAncestorPath(s string) (AncestorPath, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AncestorPath{}, nil
	}
	parts := strings.Split(s, ",")
	path := make(AncestorPath, 0, len(parts))
	for i, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ancestor path %q: %w", s, err)
		}
		if i == 0 && id == 0 {
			continue
		}
		path = append(path, id)
	}
	return path, nil
}
