package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"RangeBreak/internal/domain/models"
	domrepo "RangeBreak/internal/domain/repository"

	"gopkg.in/yaml.v3"
)

// FileBarSource reads <dir>/<code>.json, a JSON array of bar records.
type FileBarSource struct {
	dir string
}

var _ domrepo.BarStore = (*FileBarSource)(nil)

func NewFileBarSource(dir string) *FileBarSource {
	return &FileBarSource{dir: dir}
}

func (s *FileBarSource) path(code string) string {
	return filepath.Join(s.dir, code+".json")
}

func (s *FileBarSource) LoadSeries(ctx context.Context, code string) (*models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(code))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", code, domrepo.ErrSeriesNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", code, err)
	}

	var recs []barRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path(code), err)
	}
	return toSeries(code, recs)
}

// StoreBars overwrites the instrument's file.
func (s *FileBarSource) StoreBars(_ context.Context, code string, bars []models.Bar) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.dir, err)
	}
	raw, err := json.MarshalIndent(toRecords(bars), "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", code, err)
	}
	return writeAtomic(s.path(code), raw)
}

// FileRoster reads the instrument list from a YAML file:
//
//	instruments:
//	  - code: "7203"
//	    name: Toyota Motor
type FileRoster struct {
	path string
}

var _ domrepo.RosterSource = (*FileRoster)(nil)

func NewFileRoster(path string) *FileRoster {
	return &FileRoster{path: path}
}

type rosterFile struct {
	Instruments []models.Instrument `yaml:"instruments"`
}

func (r *FileRoster) LoadRoster(_ context.Context) ([]models.Instrument, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var f rosterFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", r.path, err)
	}

	seen := make(map[string]struct{}, len(f.Instruments))
	out := f.Instruments[:0]
	for _, inst := range f.Instruments {
		if inst.Code == "" {
			return nil, fmt.Errorf("roster %s: %w", r.path, models.ErrEmptyInstrument)
		}
		if _, dup := seen[inst.Code]; dup {
			continue
		}
		seen[inst.Code] = struct{}{}
		out = append(out, inst)
	}
	return out, nil
}

// writeAtomic writes to a temp file in the same directory and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
