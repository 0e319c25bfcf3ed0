package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lherron/dirsync/internal/plan"
	"github.com/lherron/dirsync/internal/source"
)

type syncManifestV1 struct {
	Version    int       `json:"version"`
	RunID      string    `json:"run_id"`
	Mode       plan.Mode `json:"mode"`
	Driver     string    `json:"driver"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Input      struct {
		Dir   string            `json:"dir"`
		Files map[string]string `json:"files"`
	} `json:"input"`
	PlanRev string `json:"plan_rev"`
	Summary struct {
		Departments plan.Counts `json:"departments"`
		Users       plan.Counts `json:"users"`
	} `json:"summary"`
	Fatal    *plan.Fatal    `json:"fatal,omitempty"`
	Actions  []plan.Action  `json:"actions"`
	Warnings []plan.Warning `json:"warnings"`
	Failures []plan.Failure `json:"failures"`
}

func newSyncManifest(s *plan.Summary, driver, target, snapshotDir string) *syncManifestV1 {
	m := &syncManifestV1{
		Version:    1,
		RunID:      s.RunID,
		Mode:       s.Mode,
		Driver:     driver,
		Target:     target,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		PlanRev:    s.PlanRev,
		Fatal:      s.Fatal,
		Actions:    s.Actions,
		Warnings:   s.Warnings,
		Failures:   s.Failures,
	}
	m.Input.Dir = snapshotDir
	m.Input.Files = map[string]string{
		"departments": source.DepartmentsFile,
		"users":       source.UsersFile,
	}
	m.Summary.Departments = s.Departments
	m.Summary.Users = s.Users
	return m
}

func writeManifest(outputDir string, manifest *syncManifestV1) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	ts := manifest.FinishedAt.UTC().Format("20060102T150405Z")
	name := fmt.Sprintf("sync_manifest_%s_%s.json", ts, manifest.RunID)
	path := filepath.Join(outputDir, name)

	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, append(b, '\n'), 0o644)
}
