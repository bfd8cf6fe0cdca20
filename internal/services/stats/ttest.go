package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"RangeBreak/pkg/util"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultAlpha is the significance threshold applied to the reported p-value.
const DefaultAlpha = 0.05

var (
	ErrNoData              = errors.New("no samples")
	ErrInsufficientSamples = errors.New("fewer than two samples")
	ErrZeroVariance        = errors.New("sample variance is zero")
	ErrNaN                 = errors.New("sample contains NaN")
)

// TTest is a one-sample t-test of H0: mean == 0.
//
// PValue follows the report's one-sided convention: the lower-tail CDF of T is
// rounded to 3 decimals, and for a non-negative sample mean it is replaced by
// 1 minus that value, again rounded. Mean and T are rounded to 3 decimals.
type TTest struct {
	N      int
	Mean   float64
	T      float64
	PValue float64
}

// Significant reports PValue < alpha.
func (r TTest) Significant(alpha float64) bool {
	return r.PValue < alpha
}

// OneSampleTTest runs the test over xs. The error is one of the package
// sentinels when the statistic is undefined. With ErrZeroVariance the
// returned N and Mean are still valid.
func OneSampleTTest(xs []float64) (TTest, error) {
	res := TTest{N: len(xs)}
	for _, x := range xs {
		if math.IsNaN(x) {
			return res, ErrNaN
		}
	}
	switch len(xs) {
	case 0:
		return res, ErrNoData
	case 1:
		res.Mean = util.Round(xs[0], 3)
		return res, ErrInsufficientSamples
	}

	mean, variance := stat.MeanVariance(xs, nil)
	res.Mean = util.Round(mean, 3)
	if allEqual(xs) || !(variance > 0) {
		return res, ErrZeroVariance
	}

	n := float64(len(xs))
	t := mean / math.Sqrt(variance/n)
	if !util.Finite(t) {
		return res, fmt.Errorf("%w: t=%g", ErrZeroVariance, t)
	}

	lower := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}.CDF(t)
	p := util.Round(lower, 3)
	if mean >= 0 {
		p = util.Round(1-p, 3)
	}

	res.T = util.Round(t, 3)
	res.PValue = p
	return res, nil
}

// allEqual catches samples like [0.1, 0.1, 0.1] whose floating-point variance
// comes out as a tiny positive number.
func allEqual(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

// SortedFinite returns an ascending copy of xs, rejecting NaN.
func SortedFinite(xs []float64) ([]float64, error) {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) {
			return nil, fmt.Errorf("%w at index %d", ErrNaN, i)
		}
		out[i] = x
	}
	sort.Float64s(out)
	return out, nil
}
