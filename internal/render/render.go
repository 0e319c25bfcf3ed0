package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lherron/dirsync/internal/plan"
)

// Format represents an output format
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML, FormatMarkdown:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be one of table, json, yaml, markdown", s)
	}
}

// Options for rendering
type Options struct {
	Format    Format
	Porcelain bool
	// Verbose adds the action log to table output.
	Verbose bool
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	opts   Options
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, opts Options) *Renderer {
	return &Renderer{
		writer: writer,
		opts:   opts,
	}
}

// RenderSummary writes a run summary in the configured format.
func (r *Renderer) RenderSummary(s *plan.Summary) error {
	switch r.opts.Format {
	case FormatJSON:
		return r.RenderJSON(s)
	case FormatYAML:
		return r.RenderYAML(s)
	case FormatMarkdown:
		_, err := io.WriteString(r.writer, plan.FormatMarkdown(s))
		return err
	default:
		return r.renderSummaryTable(s)
	}
}

// RenderJSON renders data as JSON
func (r *Renderer) RenderJSON(data interface{}) error {
	encoder := json.NewEncoder(r.writer)
	if !r.opts.Porcelain {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data interface{}) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(data)
}

func (r *Renderer) renderSummaryTable(s *plan.Summary) error {
	if _, err := fmt.Fprintln(r.writer, plan.FormatText(s)); err != nil {
		return err
	}
	if s.Fatal != nil {
		fmt.Fprintf(r.writer, "FATAL: %s\n", s.Fatal.Message)
	}
	fmt.Fprintln(r.writer)

	counts := [][]string{
		countRow("departments", s.Departments),
		countRow("users", s.Users),
	}
	if err := r.RenderTable([]string{"ENTITY", "INSERT", "UPDATE", "NOOP", "SKIPPED", "WARNINGS", "FAILURES"}, counts); err != nil {
		return err
	}

	if r.opts.Verbose && len(s.Actions) > 0 {
		fmt.Fprintln(r.writer)
		rows := make([][]string, 0, len(s.Actions))
		for _, a := range s.Actions {
			status := "ok"
			if a.Failed {
				status = "FAILED: " + a.Error
			}
			detail := plan.FormatChanges(a.Changes)
			if a.Reason != "" {
				detail = a.Reason
			}
			rows = append(rows, []string{string(a.Entity), string(a.Kind), a.Key, a.Name, detail, status})
		}
		if err := r.RenderTable([]string{"ENTITY", "KIND", "KEY", "NAME", "CHANGES", "STATUS"}, rows); err != nil {
			return err
		}
	}

	if len(s.Warnings) > 0 {
		fmt.Fprintln(r.writer)
		for _, w := range s.Warnings {
			fmt.Fprintf(r.writer, "warning [%s]: %s\n", w.Code, w.Message)
		}
	}
	return nil
}

func countRow(name string, c plan.Counts) []string {
	return []string{
		name,
		strconv.Itoa(c.Insert),
		strconv.Itoa(c.Update),
		strconv.Itoa(c.NoOp),
		strconv.Itoa(c.Skipped),
		strconv.Itoa(c.Warnings),
		strconv.Itoa(c.Failures),
	}
}

// RenderTable renders data as a formatted table
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	// Calculate column widths
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Render header
	if !r.opts.Porcelain {
		r.renderTableRow(headers, widths)
		r.renderTableSeparator(widths)
	} else {
		// Porcelain mode: just tab-separated
		fmt.Fprintln(r.writer, strings.Join(headers, "\t"))
	}

	// Render rows
	for _, row := range rows {
		if r.opts.Porcelain {
			fmt.Fprintln(r.writer, strings.Join(row, "\t"))
		} else {
			r.renderTableRow(row, widths)
		}
	}

	return nil
}

func (r *Renderer) renderTableRow(cells []string, widths []int) {
	for i, cell := range cells {
		if i < len(widths) {
			if i == len(cells)-1 {
				fmt.Fprint(r.writer, cell)
				break
			}
			fmt.Fprintf(r.writer, "%-*s  ", widths[i], cell)
		}
	}
	fmt.Fprintln(r.writer)
}

func (r *Renderer) renderTableSeparator(widths []int) {
	for i, width := range widths {
		fmt.Fprint(r.writer, strings.Repeat("-", width))
		if i < len(widths)-1 {
			fmt.Fprint(r.writer, "  ")
		}
	}
	fmt.Fprintln(r.writer)
}
