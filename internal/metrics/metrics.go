// Package metrics exposes run results as Prometheus metrics written to a
// node-exporter textfile.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lherron/dirsync/internal/plan"
)

const namespace = "dirsync"

// Recorder holds the gauges for one run.
type Recorder struct {
	reg      *prometheus.Registry
	actions  *prometheus.GaugeVec
	warnings *prometheus.GaugeVec
	failures *prometheus.GaugeVec
	duration prometheus.Gauge
	finished prometheus.Gauge
	fatal    prometheus.Gauge
	dryRun   prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		actions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actions",
			Help:      "Actions decided in the last run by entity and kind.",
		}, []string{"entity", "kind"}),
		warnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "warnings",
			Help:      "Warnings raised in the last run by entity.",
		}, []string{"entity"}),
		failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "write_failures",
			Help:      "Failed writes in the last run by entity.",
		}, []string{"entity"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		fatal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_department_phase_aborted",
			Help:      "1 if the last run aborted the department phase on bad input.",
		}),
		dryRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_dry_run",
			Help:      "1 if the last run was a dry-run.",
		}),
	}
	r.reg.MustRegister(r.actions, r.warnings, r.failures, r.duration, r.finished, r.fatal, r.dryRun)
	return r
}

// Observe sets every gauge from a run summary.
func (r *Recorder) Observe(s *plan.Summary) {
	for entity, c := range map[plan.Entity]plan.Counts{
		plan.EntityDepartment: s.Departments,
		plan.EntityUser:       s.Users,
	} {
		e := string(entity)
		r.actions.WithLabelValues(e, string(plan.KindInsert)).Set(float64(c.Insert))
		r.actions.WithLabelValues(e, string(plan.KindUpdate)).Set(float64(c.Update))
		r.actions.WithLabelValues(e, string(plan.KindNoOp)).Set(float64(c.NoOp))
		r.actions.WithLabelValues(e, string(plan.KindSkipped)).Set(float64(c.Skipped))
		r.warnings.WithLabelValues(e).Set(float64(c.Warnings))
		r.failures.WithLabelValues(e).Set(float64(c.Failures))
	}
	r.duration.Set(s.Duration().Seconds())
	if !s.FinishedAt.IsZero() {
		r.finished.Set(float64(s.FinishedAt.Unix()))
	}
	r.fatal.Set(boolGauge(s.Fatal != nil))
	r.dryRun.Set(boolGauge(s.Mode == plan.ModeDryRun))
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes the metrics atomically to path for the node
// exporter's textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
