// Package source reads directory snapshots exported by the directory
// platform's fetch job.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/lherron/dirsync/internal/domain"
)

// File names written by the fetch job.
const (
	DepartmentsFile = "feishu_departments.csv"
	UsersFile       = "feishu_users.csv"
)

var (
	departmentColumns = []string{"dept_id", "dept_name", "parent_dept_id"}
	userColumns       = []string{"user_id", "name"}
)

// CSV is a snapshot stored as the two CSV exports in one directory. It
// satisfies reconcile.Source. Records are passed through in file order;
// duplicate and keyless records are left to the reconciler, which reports
// them.
type CSV struct {
	Dir    string
	Logger logrus.FieldLogger
}

// NewCSV creates a CSV snapshot source rooted at dir.
func NewCSV(dir string, log logrus.FieldLogger) *CSV {
	return &CSV{Dir: dir, Logger: log}
}

// ListDepartments reads feishu_departments.csv. A parent id of "0" or empty
// marks a root.
func (c *CSV) ListDepartments(ctx context.Context) ([]domain.SourceDepartment, error) {
	path := filepath.Join(c.Dir, DepartmentsFile)
	var out []domain.SourceDepartment
	err := readCSV(ctx, path, departmentColumns, func(line int, rec record) error {
		d := domain.SourceDepartment{
			ExternalID: rec.get("dept_id"),
			Name:       rec.get("dept_name"),
		}
		if parent := rec.get("parent_dept_id"); parent != "" && parent != "0" {
			d.ParentExternalID = &parent
		}
		if raw := rec.get("level"); raw != "" {
			level, err := strconv.Atoi(raw)
			if err != nil || level < 0 {
				c.logger().WithFields(logrus.Fields{
					"file":        DepartmentsFile,
					"line":        line,
					"external_id": d.ExternalID,
					"level":       raw,
				}).Warn("ignoring invalid level")
			} else {
				d.DeclaredLevel = &level
			}
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger().WithFields(logrus.Fields{"file": path, "count": len(out)}).Debug("departments loaded")
	return out, nil
}

// ListUsers reads feishu_users.csv. The user's primary department is the
// dept_id column.
func (c *CSV) ListUsers(ctx context.Context) ([]domain.SourceUser, error) {
	path := filepath.Join(c.Dir, UsersFile)
	var out []domain.SourceUser
	err := readCSV(ctx, path, userColumns, func(_ int, rec record) error {
		out = append(out, domain.SourceUser{
			ExternalID:           rec.get("user_id"),
			DisplayName:          rec.get("name"),
			Email:                rec.get("enterprise_email"),
			DepartmentExternalID: rec.get("dept_id"),
			UnionKey:             rec.get("union_id"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger().WithFields(logrus.Fields{"file": path, "count": len(out)}).Debug("users loaded")
	return out, nil
}

func (c *CSV) logger() logrus.FieldLogger {
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return c.Logger
}

// record is one CSV row addressed by header name.
type record struct {
	index  map[string]int
	fields []string
}

func (r record) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// readCSV decodes path (UTF-8, optionally with a BOM, or BOM-marked UTF-16)
// and calls fn for every data row with the line it starts on.
func readCSV(ctx context.Context, path string, required []string, fn func(line int, rec record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	decoded := transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	r := csv.NewReader(decoded)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("%s: missing required header column: %s", filepath.Base(path), col)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		line, _ := r.FieldPos(0)
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		if err := fn(line, record{index: index, fields: fields}); err != nil {
			return err
		}
	}
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header")
		}
		return nil, err
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if !utf8.ValidString(h[i]) {
			return nil, errors.New("invalid header encoding")
		}
	}
	return h, nil
}
