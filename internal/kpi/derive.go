// Package kpi is the aggregation core: pure reductions over fact rows
// into time buckets, entity rollups and leaderboards. No I/O, no state;
// every function is total over well-formed input.
package kpi

import "github.com/kpiboard/kpiboard/internal/models"

// Sums is the accumulation tuple every rollup is built from. Ratio
// metrics are always derived from a Sums value, never carried across
// an aggregation.
type Sums struct {
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Cost        float64 `json:"cost"`
	Leads       int     `json:"leads"`
}

func (s *Sums) Add(r models.FactRow) {
	s.Impressions += max0(r.Impressions)
	s.Clicks += max0(r.Clicks)
	s.Cost += maxf(r.Cost)
	s.Leads += max0(r.Leads)
}

// Ratios are the derived rate metrics of a Sums tuple.
type Ratios struct {
	CTR float64 `json:"ctr"`
	CPC float64 `json:"cpc"`
	CPM float64 `json:"cpm"`
	CVR float64 `json:"cvr"`
	CPL float64 `json:"cpl"`
}

// DeriveRatios computes ratio metrics from summed counters. This is the
// only place the formulas live: every aggregate recomputes its rates
// from its own sums (ratio-of-sums, never a mean of per-row rates).
// A zero denominator yields 0, not NaN or Inf.
func DeriveRatios(s Sums) Ratios {
	return Ratios{
		CTR: safeDiv(float64(s.Clicks), float64(s.Impressions)) * 100,
		CPC: safeDiv(s.Cost, float64(s.Clicks)),
		CPM: safeDiv(s.Cost, float64(s.Impressions)) * 1000,
		CVR: safeDiv(float64(s.Leads), float64(s.Clicks)) * 100,
		CPL: safeDiv(s.Cost, float64(s.Leads)),
	}
}

// RowRatios derives a single row's rates through the shared derivation.
func RowRatios(r models.FactRow) Ratios {
	var s Sums
	s.Add(r)
	return DeriveRatios(s)
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func max0(i int) int {
	if i < 0 {
		return 0
	}
	return i
}

func maxf(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
