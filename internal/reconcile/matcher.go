package reconcile

import (
	"sort"

	"github.com/lherron/dirsync/internal/domain"
)

// departmentIndex resolves target departments by their stable keys.
// Names never take part in matching.
type departmentIndex struct {
	byExternal map[string]domain.TargetDepartment
	byID       map[int64]domain.TargetDepartment
}

func newDepartmentIndex(rows []domain.TargetDepartment) *departmentIndex {
	sorted := make([]domain.TargetDepartment, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].InternalID < sorted[j].InternalID })

	ix := &departmentIndex{
		byExternal: make(map[string]domain.TargetDepartment, len(rows)),
		byID:       make(map[int64]domain.TargetDepartment, len(rows)),
	}
	for _, row := range sorted {
		ix.byID[row.InternalID] = row
		if row.ExternalID == nil || *row.ExternalID == "" {
			continue
		}
		// Lowest internal id wins if the store ever holds a duplicate key.
		if _, exists := ix.byExternal[*row.ExternalID]; !exists {
			ix.byExternal[*row.ExternalID] = row
		}
	}
	return ix
}

func (ix *departmentIndex) match(externalID string) (domain.TargetDepartment, bool) {
	d, ok := ix.byExternal[externalID]
	return d, ok
}

func (ix *departmentIndex) get(internalID int64) (domain.TargetDepartment, bool) {
	d, ok := ix.byID[internalID]
	return d, ok
}

// userIndex resolves target users by login name, the only match key.
type userIndex struct {
	byLogin map[string]domain.TargetUser
}

func newUserIndex(rows []domain.TargetUser) *userIndex {
	sorted := make([]domain.TargetUser, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].InternalID < sorted[j].InternalID })

	ix := &userIndex{byLogin: make(map[string]domain.TargetUser, len(rows))}
	for _, row := range sorted {
		if row.LoginName == "" {
			continue
		}
		if _, exists := ix.byLogin[row.LoginName]; !exists {
			ix.byLogin[row.LoginName] = row
		}
	}
	return ix
}

func (ix *userIndex) match(externalID string) (domain.TargetUser, bool) {
	u, ok := ix.byLogin[externalID]
	return u, ok
}
