package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Tally fills the per-entity counts of a summary from its actions,
// warnings and failures.
func (s *Summary) Tally(all []Action) {
	s.Departments = Counts{}
	s.Users = Counts{}

	for _, a := range all {
		c := s.counts(a.Entity)
		if c == nil {
			continue
		}
		switch a.Kind {
		case KindInsert:
			c.Insert++
		case KindUpdate:
			c.Update++
		case KindNoOp:
			c.NoOp++
		case KindSkipped:
			c.Skipped++
		}
	}
	for _, w := range s.Warnings {
		if c := s.counts(w.Entity); c != nil {
			c.Warnings++
		}
	}
	for _, f := range s.Failures {
		if c := s.counts(f.Entity); c != nil {
			c.Failures++
		}
	}
}

func (s *Summary) counts(e Entity) *Counts {
	switch e {
	case EntityDepartment:
		return &s.Departments
	case EntityUser:
		return &s.Users
	default:
		return nil
	}
}

// FormatText generates a one-paragraph text summary.
func FormatText(s *Summary) string {
	var parts []string

	if s.Fatal != nil {
		parts = append(parts, fmt.Sprintf("department phase aborted (%s)", s.Fatal.Kind))
	}
	if text := formatEntityText("department", s.Departments); text != "" {
		parts = append(parts, text)
	}
	if text := formatEntityText("user", s.Users); text != "" {
		parts = append(parts, text)
	}

	prefix := ""
	if s.Mode == ModeDryRun {
		prefix = "[dry-run] "
	}
	if len(parts) == 0 {
		return prefix + "No changes."
	}
	return prefix + strings.Join(parts, "; ") + "."
}

// formatEntityText formats counts for a single entity type.
func formatEntityText(entity string, c Counts) string {
	var ops []string

	if c.Insert > 0 {
		ops = append(ops, fmt.Sprintf("%d %s created", c.Insert, pluralize(entity, c.Insert)))
	}
	if c.Update > 0 {
		ops = append(ops, fmt.Sprintf("%d %s updated", c.Update, pluralize(entity, c.Update)))
	}
	if c.Skipped > 0 {
		ops = append(ops, fmt.Sprintf("%d skipped", c.Skipped))
	}
	if c.Warnings > 0 {
		ops = append(ops, fmt.Sprintf("%d %s", c.Warnings, pluralize("warning", c.Warnings)))
	}
	if c.Failures > 0 {
		ops = append(ops, fmt.Sprintf("%d %s", c.Failures, pluralize("failure", c.Failures)))
	}

	return strings.Join(ops, ", ")
}

// pluralize returns singular or plural form.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}

// FormatChanges renders field changes as "field: old -> new" pairs.
func FormatChanges(changes []FieldChange) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		old := c.Old
		if old == "" {
			old = "(none)"
		}
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", c.Field, old, c.New))
	}
	return strings.Join(parts, ", ")
}

// FormatMarkdown generates a markdown summary with a details table.
func FormatMarkdown(s *Summary) string {
	var sb strings.Builder

	sb.WriteString("## Summary\n\n")
	sb.WriteString(FormatText(s))
	sb.WriteString("\n\n")

	sb.WriteString("| Entity | Insert | Update | No-op | Skipped | Warnings | Failures |\n")
	sb.WriteString("|--------|--------|--------|-------|---------|----------|----------|\n")
	for _, row := range []struct {
		name string
		c    Counts
	}{{"departments", s.Departments}, {"users", s.Users}} {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d | %d |\n",
			row.name, row.c.Insert, row.c.Update, row.c.NoOp, row.c.Skipped, row.c.Warnings, row.c.Failures))
	}
	sb.WriteString("\n")

	if len(s.Actions) > 0 {
		sb.WriteString("## Actions\n\n")
		sb.WriteString("| Entity | Kind | Key | Name | Changes |\n")
		sb.WriteString("|--------|------|-----|------|---------|\n")
		for _, a := range s.Actions {
			detail := FormatChanges(a.Changes)
			if a.Reason != "" {
				detail = a.Reason
			}
			if a.Failed {
				detail = "FAILED: " + a.Error
			}
			if detail == "" {
				detail = "-"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				a.Entity, a.Kind, escapeCell(a.Key), escapeCell(a.Name), escapeCell(detail)))
		}
		sb.WriteString("\n")
	}

	if len(s.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		warnings := make([]Warning, len(s.Warnings))
		copy(warnings, s.Warnings)
		sort.SliceStable(warnings, func(i, j int) bool {
			return warnings[i].Code < warnings[j].Code
		})
		for _, w := range warnings {
			sb.WriteString(fmt.Sprintf("- `%s` %s\n", w.Code, w.Message))
		}
	}

	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// Digest renders a short multi-line report of what changed, naming at most
// limit records per section. It returns nil when nothing changed.
func Digest(s *Summary, limit int) []string {
	if !s.HasChanges() {
		return nil
	}

	var lines []string
	if s.Departments.Insert > 0 {
		lines = append(lines, fmt.Sprintf("Departments created: %d", s.Departments.Insert))
	}
	if s.Departments.Update > 0 {
		lines = append(lines, fmt.Sprintf("Departments updated: %d", s.Departments.Update))
	}

	var created, updated []Action
	for _, a := range s.Actions {
		if a.Entity != EntityUser || a.Failed {
			continue
		}
		switch a.Kind {
		case KindInsert:
			created = append(created, a)
		case KindUpdate:
			updated = append(updated, a)
		}
	}

	if s.Users.Insert > 0 {
		names := make([]string, 0, limit)
		for i, a := range created {
			if i >= limit {
				break
			}
			names = append(names, fmt.Sprintf("%s(%s)", a.Name, a.Key))
		}
		line := "Users created: " + strings.Join(names, ", ")
		if s.Users.Insert > limit {
			line += fmt.Sprintf(" and %d more", s.Users.Insert-limit)
		}
		lines = append(lines, line)
	}

	if s.Users.Update > 0 {
		lines = append(lines, "Users updated:")
		for i, a := range updated {
			if i >= limit {
				break
			}
			lines = append(lines, fmt.Sprintf("%s(%s) - %s", a.Name, a.Key, FormatChanges(a.Changes)))
		}
		if s.Users.Update > limit {
			lines = append(lines, fmt.Sprintf("...%d users in total", s.Users.Update))
		}
	}

	return lines
}
