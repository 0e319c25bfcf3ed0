package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/dirsync/internal/plan"
)

func sampleSummary() *plan.Summary {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &plan.Summary{
		Mode:        plan.ModeApply,
		StartedAt:   start,
		FinishedAt:  start.Add(1500 * time.Millisecond),
		Departments: plan.Counts{Insert: 2, NoOp: 5, Warnings: 1},
		Users:       plan.Counts{Update: 3, Failures: 1},
	}
}

func TestObserve(t *testing.T) {
	r := New()
	r.Observe(sampleSummary())

	assert.Equal(t, 2.0, promtest.ToFloat64(r.actions.WithLabelValues("department", "insert")))
	assert.Equal(t, 3.0, promtest.ToFloat64(r.actions.WithLabelValues("user", "update")))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.warnings.WithLabelValues("department")))
	assert.Equal(t, 1.0, promtest.ToFloat64(r.failures.WithLabelValues("user")))
	assert.Equal(t, 1.5, promtest.ToFloat64(r.duration))
	assert.Equal(t, 0.0, promtest.ToFloat64(r.fatal))
	assert.Equal(t, 0.0, promtest.ToFloat64(r.dryRun))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Observe(sampleSummary())

	path := filepath.Join(t.TempDir(), "dirsync.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `dirsync_actions{entity="department",kind="insert"} 2`), out)
	assert.Contains(t, out, "dirsync_last_run_duration_seconds 1.5")
}
