package reconcile

import (
	"context"
	"sync/atomic"

	"github.com/lherron/dirsync/internal/domain"
)

// writer performs the writes decided by the reconcilers. Apply and dry-run
// share every planning step and differ only in the writer they use.
type writer interface {
	insertDepartment(ctx context.Context, d domain.TargetDepartment) (int64, error)
	updateDepartment(ctx context.Context, id int64, fields map[string]interface{}) error
	insertUser(ctx context.Context, u domain.NewUser) (int64, error)
	updateUser(ctx context.Context, id int64, fields map[string]interface{}) error
}

// applyWriter forwards writes to the target store.
type applyWriter struct {
	target Target
}

func (w *applyWriter) insertDepartment(ctx context.Context, d domain.TargetDepartment) (int64, error) {
	return w.target.InsertDepartment(ctx, d)
}

func (w *applyWriter) updateDepartment(ctx context.Context, id int64, fields map[string]interface{}) error {
	return w.target.UpdateDepartment(ctx, id, fields)
}

func (w *applyWriter) insertUser(ctx context.Context, u domain.NewUser) (int64, error) {
	return w.target.InsertUser(ctx, u)
}

func (w *applyWriter) updateUser(ctx context.Context, id int64, fields map[string]interface{}) error {
	return w.target.UpdateUser(ctx, id, fields)
}

// dryRunWriter records nothing and hands out placeholder ids: -1, -2, ...
// Departments are written sequentially, so their placeholders are stable
// across runs over the same input.
type dryRunWriter struct {
	next atomic.Int64
}

func (w *dryRunWriter) placeholder() int64 {
	return -w.next.Add(1)
}

func (w *dryRunWriter) insertDepartment(context.Context, domain.TargetDepartment) (int64, error) {
	return w.placeholder(), nil
}

func (w *dryRunWriter) updateDepartment(context.Context, int64, map[string]interface{}) error {
	return nil
}

func (w *dryRunWriter) insertUser(context.Context, domain.NewUser) (int64, error) {
	return w.placeholder(), nil
}

func (w *dryRunWriter) updateUser(context.Context, int64, map[string]interface{}) error {
	return nil
}
