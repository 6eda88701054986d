package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ProfileOptions tunes the extended summary.
type ProfileOptions struct {
	// OutlierThreshold is the robust |z| cut-off (MAD based). Defaults to 3.5.
	OutlierThreshold float64
	// TopPairs caps the correlation pairs listed. Defaults to 10.
	TopPairs int
}

// Profile is the extended summary appended to prompts when more detail is wanted.
type Profile struct {
	Outliers     []OutlierSummary
	Correlations []PairCorr
	Notes        []string
}

// OutlierSummary counts robust-z outliers in one numeric column.
type OutlierSummary struct {
	Column    string
	Count     int
	MaxAbsZ   float64
	Threshold float64
}

// PairCorr is a Pearson correlation between two columns.
type PairCorr struct {
	A, B string
	R    float64
	N    int
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
}

// Profile computes MAD outliers and the strongest correlation pairs.
func (f *Frame) Profile(opt ProfileOptions) *Profile {
	thr := opt.OutlierThreshold
	if thr <= 0 {
		thr = 3.5
	}
	top := opt.TopPairs
	if top <= 0 {
		top = 10
	}
	p := &Profile{Notes: append([]string(nil), f.Notes...)}
	for _, c := range f.cols {
		if !c.kind.Numeric() {
			continue
		}
		vals := c.Numbers()
		// too few points for a meaningful median
		if len(vals) < 8 {
			continue
		}
		median, mad := medianMAD(vals)
		s := OutlierSummary{Column: c.name, Threshold: thr}
		if mad > 0 {
			for _, v := range vals {
				az := math.Abs(0.6745 * (v - median) / mad)
				if az > thr {
					s.Count++
				}
				s.MaxAbsZ = math.Max(s.MaxAbsZ, az)
			}
		}
		p.Outliers = append(p.Outliers, s)
	}
	p.Correlations = f.corrPairs()
	if len(p.Correlations) > top {
		p.Correlations = p.Correlations[:top]
	}
	return p
}

// Correlation returns the pairwise-complete Pearson matrix of numeric columns.
// Pairs with fewer than two shared observations or zero variance are 0.
func (f *Frame) Correlation() *CorrMatrix {
	names := f.NumericColumns()
	n := len(names)
	m := &CorrMatrix{Columns: names, Values: make([][]float64, n)}
	cols := make([]*Column, n)
	for i, name := range names {
		cols[i], _ = f.Column(name)
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			r, _ := pearson(cols[a].nums, cols[b].nums)
			m.Values[a][b] = r
			m.Values[b][a] = r
		}
	}
	return m
}

func (f *Frame) corrPairs() []PairCorr {
	var cols []*Column
	for _, c := range f.cols {
		if c.kind.Numeric() {
			cols = append(cols, c)
		}
	}
	var pairs []PairCorr
	for a := 0; a < len(cols); a++ {
		for b := a + 1; b < len(cols); b++ {
			r, n := pearson(cols[a].nums, cols[b].nums)
			if n < 2 {
				continue
			}
			pairs = append(pairs, PairCorr{A: cols[a].name, B: cols[b].name, R: r, N: n})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	return pairs
}

// pearson skips rows where either side is NaN.
func pearson(xs, ys []float64) (float64, int) {
	var n, sumX, sumY, sumXX, sumYY, sumXY float64
	for i := range xs {
		if i >= len(ys) || math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		x, y := xs[i], ys[i]
		n++
		sumX += x
		sumY += y
		sumXX += x * x
		sumYY += y * y
		sumXY += x * y
	}
	if n < 2 {
		return 0, int(n)
	}
	denom := math.Sqrt((n*sumXX - sumX*sumX) * (n*sumYY - sumY*sumY))
	if denom == 0 || math.IsNaN(denom) {
		return 0, int(n)
	}
	r := (n*sumXY - sumX*sumY) / denom
	return math.Max(-1, math.Min(1, r)), int(n)
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := append([]float64(nil), vals...)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	return median, quantile(dev, 0.5)
}

// String renders the profile as prompt-ready text.
func (p *Profile) String() string {
	var b strings.Builder
	if len(p.Outliers) > 0 {
		b.WriteString("Outliers (robust z-score, MAD):\n")
		for _, o := range p.Outliers {
			fmt.Fprintf(&b, "- %s: %d above |z|>%.1f", o.Column, o.Count, o.Threshold)
			if o.MaxAbsZ > 0 {
				fmt.Fprintf(&b, " (max |z|≈%.2f)", o.MaxAbsZ)
			}
			b.WriteString("\n")
		}
	}
	if len(p.Correlations) > 0 {
		b.WriteString("Strongest correlations (Pearson):\n")
		for _, c := range p.Correlations {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f (n=%d)\n", c.A, c.B, c.R, c.N)
		}
	}
	if len(p.Notes) > 0 {
		b.WriteString("Notes:\n")
		for _, n := range p.Notes {
			b.WriteString("- ")
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	return b.String()
}
