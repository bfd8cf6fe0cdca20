package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"RangeBreak/internal/domain/models"
	domrepo "RangeBreak/internal/domain/repository"
	"RangeBreak/internal/services/report"
)

// FileExporter writes a run to <dir>/<run id>/ as events.json, report.json,
// regimes.json and report.md, and refreshes <dir>/latest.md.
type FileExporter struct {
	dir string
}

var _ domrepo.RunSink = (*FileExporter)(nil)

func NewFileExporter(dir string) *FileExporter {
	return &FileExporter{dir: dir}
}

func (e *FileExporter) Name() string { return "file" }

// RunDir is the directory a run is exported to.
func (e *FileExporter) RunDir(runID string) string {
	return filepath.Join(e.dir, runID)
}

func (e *FileExporter) Write(_ context.Context, run *models.Run) error {
	dir := e.RunDir(run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	files := []struct {
		name  string
		value interface{}
	}{
		{"events.json", run.Result},
		{"report.json", run.Report},
		{"regimes.json", run.Regimes},
	}
	for _, f := range files {
		raw, err := json.MarshalIndent(f.value, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := writeAtomic(filepath.Join(dir, f.name), raw); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	var md bytes.Buffer
	if err := report.WriteMarkdown(&md, run); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, "report.md"), md.Bytes()); err != nil {
		return fmt.Errorf("write report.md: %w", err)
	}
	return writeAtomic(filepath.Join(e.dir, "latest.md"), md.Bytes())
}
