package reconcile

import (
	"sort"
	"strings"

	"github.com/lherron/dirsync/internal/domain"
)

// Node is a source department placed in the hierarchy.
type Node struct {
	Dept  domain.SourceDepartment
	Order int // position in the snapshot
	Level int
	// ParentKey is the parent's external id when the parent is part of the
	// snapshot. Empty for roots.
	ParentKey string
	// TargetParent is set for roots whose parent exists only in the target.
	TargetParent *domain.TargetDepartment
}

// Orphan is a source department that cannot be placed in the hierarchy.
type Orphan struct {
	ExternalID    string
	MissingParent string
	// Inherited is true when the department's own parent is present but
	// some ancestor is missing.
	Inherited bool
}

// Hierarchy is the level-ordered result of BuildHierarchy.
type Hierarchy struct {
	// Levels holds the placed departments grouped by level, shallowest first.
	// Within a level departments keep snapshot order.
	Levels  [][]Node
	Orphans []Orphan
	// Invalid lists records rejected before placement.
	Invalid []InvalidRecord
}

// InvalidRecord is a source record that failed validation.
type InvalidRecord struct {
	Order int
	Err   error
}

// Ordered returns every placed node in processing order.
func (h *Hierarchy) Ordered() []Node {
	var out []Node
	for _, level := range h.Levels {
		out = append(out, level...)
	}
	return out
}

// BuildHierarchy orders a flat department snapshot so that every department
// follows its parent. A department whose parent is absent from the snapshot
// is a root when the parent already exists in the target, and an orphan
// otherwise. Duplicate external ids and parent cycles are fatal.
func BuildHierarchy(depts []domain.SourceDepartment, existing []domain.TargetDepartment) (*Hierarchy, error) {
	return buildHierarchy(depts, newDepartmentIndex(existing))
}

func buildHierarchy(depts []domain.SourceDepartment, targets *departmentIndex) (*Hierarchy, error) {
	h := &Hierarchy{}

	type entry struct {
		dept  domain.SourceDepartment
		order int
	}
	normalized := make([]domain.SourceDepartment, len(depts))
	for i, d := range depts {
		normalized[i] = normalizeDepartment(d)
	}

	// Duplicate keys, reported in first-appearance order. Every keyed record
	// counts, whatever else is wrong with it.
	seen := make(map[string]bool, len(normalized))
	seenDup := map[string]bool{}
	var dups []string
	for _, d := range normalized {
		key := d.ExternalID
		if key == "" {
			continue
		}
		if seen[key] && !seenDup[key] {
			seenDup[key] = true
			dups = append(dups, key)
		}
		seen[key] = true
	}
	if len(dups) > 0 {
		return nil, &domain.FatalInputError{Kind: domain.FatalDuplicateExternalID, ExternalIDs: dups}
	}

	var valid []entry
	byKey := make(map[string]entry, len(normalized))
	for i, d := range normalized {
		if err := domain.ValidateSourceDepartment(d); err != nil {
			h.Invalid = append(h.Invalid, InvalidRecord{Order: i, Err: err})
			continue
		}
		e := entry{dept: d, order: i}
		valid = append(valid, e)
		byKey[d.ExternalID] = e
	}

	parentInSnapshot := func(d domain.SourceDepartment) (string, bool) {
		if d.IsRoot() {
			return "", false
		}
		_, ok := byKey[*d.ParentExternalID]
		return *d.ParentExternalID, ok
	}

	// Cycle detection over snapshot-internal parent links
	state := map[string]int{} // 0 unvisited, 1 visiting, 2 done
	for _, e := range valid {
		var chain []string
		cur := e.dept.ExternalID
		for state[cur] == 0 {
			state[cur] = 1
			chain = append(chain, cur)
			parent, ok := parentInSnapshot(byKey[cur].dept)
			if !ok {
				break
			}
			if state[parent] == 1 {
				start := 0
				for i, k := range chain {
					if k == parent {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, chain[start:]...), parent)
				return nil, &domain.FatalInputError{Kind: domain.FatalCycle, ExternalIDs: cycle}
			}
			cur = parent
		}
		for _, k := range chain {
			state[k] = 2
		}
	}

	children := make(map[string][]entry)
	levels := make(map[string]int, len(valid))
	var queue []Node
	directOrphan := map[string]string{}

	for _, e := range valid {
		d := e.dept
		if d.IsRoot() {
			queue = append(queue, Node{Dept: d, Order: e.order, Level: 0})
			continue
		}
		parentKey := *d.ParentExternalID
		if _, ok := byKey[parentKey]; ok {
			children[parentKey] = append(children[parentKey], e)
			continue
		}
		if tp, ok := targets.match(parentKey); ok {
			tp := tp
			queue = append(queue, Node{Dept: d, Order: e.order, Level: tp.Level + 1, TargetParent: &tp})
			continue
		}
		directOrphan[d.ExternalID] = parentKey
	}

	// Breadth-first placement
	var placed []Node
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		levels[n.Dept.ExternalID] = n.Level
		placed = append(placed, n)
		for _, c := range children[n.Dept.ExternalID] {
			queue = append(queue, Node{
				Dept:      c.dept,
				Order:     c.order,
				Level:     n.Level + 1,
				ParentKey: n.Dept.ExternalID,
			})
		}
	}

	sort.SliceStable(placed, func(i, j int) bool {
		if placed[i].Level != placed[j].Level {
			return placed[i].Level < placed[j].Level
		}
		return placed[i].Order < placed[j].Order
	})
	for i, n := range placed {
		if i == 0 || n.Level != placed[i-1].Level {
			h.Levels = append(h.Levels, nil)
		}
		last := len(h.Levels) - 1
		h.Levels[last] = append(h.Levels[last], n)
	}

	for _, e := range valid {
		key := e.dept.ExternalID
		if _, ok := levels[key]; ok {
			continue
		}
		if missing, ok := directOrphan[key]; ok {
			h.Orphans = append(h.Orphans, Orphan{ExternalID: key, MissingParent: missing})
			continue
		}
		// Walk up to the ancestor whose parent is missing.
		cur := key
		for {
			if missing, ok := directOrphan[cur]; ok {
				h.Orphans = append(h.Orphans, Orphan{ExternalID: key, MissingParent: missing, Inherited: true})
				break
			}
			cur = *byKey[cur].dept.ParentExternalID
		}
	}

	return h, nil
}

// normalizeDepartment trims the record's keys the same way user department
// references are trimmed.
func normalizeDepartment(d domain.SourceDepartment) domain.SourceDepartment {
	d.ExternalID = strings.TrimSpace(d.ExternalID)
	if d.ParentExternalID != nil {
		parent := strings.TrimSpace(*d.ParentExternalID)
		d.ParentExternalID = &parent
	}
	return d
}
