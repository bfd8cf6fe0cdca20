package report

import (
	"fmt"
	"io"
	"strings"

	"RangeBreak/internal/domain/models"
	"RangeBreak/pkg/util"
)

// Filter narrows the buckets a renderer or API response includes.
// Zero fields match everything.
type Filter struct {
	Status          *models.Status
	Horizon         int
	StopFraction    float64
	Regime          *models.RegimeLabel
	SignificantOnly bool
	WithData        bool
}

// Match reports whether b passes the filter.
func (f Filter) Match(b models.BucketStat) bool {
	switch {
	case f.Status != nil && b.Status != *f.Status:
		return false
	case f.Horizon != 0 && b.Horizon != f.Horizon:
		return false
	case f.StopFraction != 0 && b.StopFraction != f.StopFraction:
		return false
	case f.Regime != nil && b.Regime != *f.Regime:
		return false
	case f.SignificantOnly && !b.Significant:
		return false
	case f.WithData && b.N == 0:
		return false
	}
	return true
}

// Buckets returns the report buckets matching f, in report order.
func Buckets(rep *models.Report, f Filter) []models.BucketStat {
	out := make([]models.BucketStat, 0, len(rep.Buckets))
	for _, b := range rep.Buckets {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	return out
}

// WriteMarkdown renders one table per (status, horizon, stop fraction): rows
// are regimes, columns are compression bands. Empty groups are left out.
func WriteMarkdown(w io.Writer, run *models.Run) error {
	rep := run.Report
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Breakout backtest %s to %s\n\n", rep.From.Format(util.DateLayout), rep.To.Format(util.DateLayout))
	fmt.Fprintf(&sb, "- run: `%s`\n", run.ID)
	fmt.Fprintf(&sb, "- generated: %s\n", rep.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if run.Result != nil {
		fmt.Fprintf(&sb, "- instruments: %d (%d failed)\n", run.Result.Instruments, len(run.Result.Failed))
		fmt.Fprintf(&sb, "- capital unit: %.0f\n", run.Result.CapitalUnit)
		fmt.Fprintf(&sb, "- data quality skips: %d\n", len(run.Result.Issues))
	}
	fmt.Fprintf(&sb, "- events: %d (unlabeled %d, out of band %d)\n\n", rep.Events, rep.Unlabeled, rep.OutOfBand)
	sb.WriteString("Cells are `mean (p, n)`; `*` marks p < 0.05, `-` no data, `n/a` undefined statistics.\n")

	groups, bands := group(rep.Buckets)
	for _, g := range groups {
		if g.n == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s, %d days, stop %.2f\n\n", g.status, g.horizon, g.fraction)
		sb.WriteString("| regime |")
		for _, b := range bands {
			fmt.Fprintf(&sb, " %s |", b)
		}
		sb.WriteString("\n|---|")
		sb.WriteString(strings.Repeat("---:|", len(bands)))
		sb.WriteString("\n")
		for _, rg := range models.RegimeLabels {
			fmt.Fprintf(&sb, "| %s |", rg)
			for _, b := range bands {
				fmt.Fprintf(&sb, " %s |", cell(g.cells[cellKey{rg, b}]))
			}
			sb.WriteString("\n")
		}
	}

	if run.Result != nil && len(run.Result.Failed) > 0 {
		sb.WriteString("\n## Failed instruments\n\n")
		for _, f := range run.Result.Failed {
			fmt.Fprintf(&sb, "- %s: %s\n", f.Instrument, f.Reason)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

type cellKey struct {
	regime models.RegimeLabel
	band   string
}

type table struct {
	status   models.Status
	horizon  int
	fraction float64
	n        int
	cells    map[cellKey]models.BucketStat
}

type groupKey struct {
	status   models.Status
	horizon  int
	fraction float64
}

// group keeps the bucket order of the report, which is status-major.
func group(buckets []models.BucketStat) ([]*table, []string) {
	var (
		tables []*table
		bands  []string
		seen   = map[string]bool{}
		index  = map[groupKey]*table{}
	)
	for _, b := range buckets {
		if !seen[b.Band] {
			seen[b.Band] = true
			bands = append(bands, b.Band)
		}
		k := groupKey{b.Status, b.Horizon, b.StopFraction}
		t, ok := index[k]
		if !ok {
			t = &table{status: b.Status, horizon: b.Horizon, fraction: b.StopFraction, cells: map[cellKey]models.BucketStat{}}
			index[k] = t
			tables = append(tables, t)
		}
		t.n += b.N
		t.cells[cellKey{b.Regime, b.Band}] = b
	}
	return tables, bands
}

func cell(b models.BucketStat) string {
	switch b.State {
	case models.BucketOK:
		mark := ""
		if b.Significant {
			mark = "*"
		}
		return fmt.Sprintf("%.3f%s (%.3f, %d)", *b.Mean, mark, *b.PValue, b.N)
	case models.BucketZeroVariance, models.BucketInsufficient:
		return fmt.Sprintf("%.3f (n/a, %d)", *b.Mean, b.N)
	default:
		return "-"
	}
}
