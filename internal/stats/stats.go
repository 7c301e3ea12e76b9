// Package stats wraps the statistical primitives shared by the detector,
// trend, and correlation stages. Everything here is pure: no state, no I/O.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// StdDev returns the sample standard deviation, 0 when fewer than 2 points.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// Median returns the middle value, interpolating for even lengths.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// MAD returns the median absolute deviation about the median.
func MAD(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	med := Median(xs)
	devs := make([]float64, len(xs))
	for i, x := range xs {
		devs[i] = math.Abs(x - med)
	}
	return Median(devs)
}

// RobustZScore computes a MAD-based z-score of x against the sample.
// The 0.6745 constant makes MAD consistent with the standard deviation
// under normality. Falls back to a classic z-score when MAD is zero.
func RobustZScore(x float64, sample []float64) float64 {
	med := Median(sample)
	mad := MAD(sample)
	if mad > 0 {
		return 0.6745 * (x - med) / mad
	}
	sd := StdDev(sample)
	if sd > 0 {
		return (x - Mean(sample)) / sd
	}
	// Constant sample: any deviation at all is maximal.
	if x == med {
		return 0
	}
	if x < med {
		return -8
	}
	return 8
}

// WelchResult holds the outcome of a two-sample Welch t-test.
type WelchResult struct {
	T       float64
	DF      float64
	PValue  float64 // two-sided
	CohensD float64
}

// WelchTTest compares the means of two independent samples without
// assuming equal variances. Returns a zero-value result with PValue 1
// when either sample is too small for the test.
func WelchTTest(a, b []float64) WelchResult {
	if len(a) < 2 || len(b) < 2 {
		return WelchResult{PValue: 1}
	}
	ma, mb := stat.Mean(a, nil), stat.Mean(b, nil)
	va, vb := stat.Variance(a, nil), stat.Variance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	se := math.Sqrt(va/na + vb/nb)
	if se == 0 {
		if ma == mb {
			return WelchResult{PValue: 1}
		}
		return WelchResult{T: math.Inf(sign(ma - mb)), PValue: 0, CohensD: math.Inf(sign(ma - mb))}
	}
	t := (ma - mb) / se

	// Welch-Satterthwaite degrees of freedom.
	num := math.Pow(va/na+vb/nb, 2)
	den := math.Pow(va/na, 2)/(na-1) + math.Pow(vb/nb, 2)/(nb-1)
	df := num / den
	if df < 1 {
		df = 1
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.CDF(-math.Abs(t))

	// Pooled standard deviation for Cohen's d.
	pooled := math.Sqrt(((na-1)*va + (nb-1)*vb) / (na + nb - 2))
	d := 0.0
	if pooled > 0 {
		d = (ma - mb) / pooled
	}

	return WelchResult{T: t, DF: df, PValue: p, CohensD: d}
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}

// Pearson returns the linear correlation of two equal-length samples.
func Pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// Spearman returns the rank correlation of two equal-length samples.
func Spearman(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	return Pearson(ranks(a), ranks(b))
}

// ranks assigns average ranks, resolving ties by mid-rank.
func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return xs[idx[i]] < xs[idx[j]] })

	out := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// CorrelationPValue tests r against zero via the t transform.
func CorrelationPValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.CDF(-math.Abs(t))
}

// LinearFit fits y = alpha + beta*x and reports slope and R².
func LinearFit(x, y []float64) (slope, r2 float64) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, 0
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r2 = stat.RSquared(x, y, nil, alpha, beta)
	if math.IsNaN(r2) {
		r2 = 0
	}
	if math.IsNaN(beta) {
		beta = 0
	}
	return beta, r2
}

// FTestPValue returns P(F >= f) for an F distribution with d1, d2
// degrees of freedom. Used by the lagged-causality gate.
func FTestPValue(f float64, d1, d2 int) float64 {
	if f <= 0 || d1 < 1 || d2 < 1 {
		return 1
	}
	dist := distuv.F{D1: float64(d1), D2: float64(d2)}
	return 1 - dist.CDF(f)
}

// EMA smooths the series with the given factor in (0,1].
func EMA(xs []float64, alpha float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	out := make([]float64, len(xs))
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// Diff returns first differences; length is len(xs)-1.
func Diff(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = xs[i] - xs[i-1]
	}
	return out
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
