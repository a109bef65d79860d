package kpi

import "sort"

// Metric selects the rollup field a leaderboard sorts by.
type Metric int

const (
	MetricCPL Metric = iota
	MetricCPC
	MetricCPM
	MetricCTR
	MetricCVR
	MetricCost
	MetricLeads
	MetricClicks
	MetricImpressions
)

func (m Metric) of(e EntityRollup) float64 {
	switch m {
	case MetricCPL:
		return e.CPL
	case MetricCPC:
		return e.CPC
	case MetricCPM:
		return e.CPM
	case MetricCTR:
		return e.CTR
	case MetricCVR:
		return e.CVR
	case MetricCost:
		return e.Cost
	case MetricLeads:
		return float64(e.Leads)
	case MetricClicks:
		return float64(e.Clicks)
	case MetricImpressions:
		return float64(e.Impressions)
	}
	return 0
}

type Order int

const (
	Ascending Order = iota
	Descending
)

// RankEntities returns the rollups sorted by metric. The sort is stable:
// ties keep their original (first-seen) order. limit 0 means no
// truncation. The input slice is not modified.
func RankEntities(rollups []EntityRollup, metric Metric, order Order, limit int) []EntityRollup {
	out := make([]EntityRollup, len(rollups))
	copy(out, rollups)
	sort.SliceStable(out, func(i, j int) bool {
		if order == Descending {
			return metric.of(out[i]) > metric.of(out[j])
		}
		return metric.of(out[i]) < metric.of(out[j])
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit:limit]
	}
	return out
}

// TopBottom ranks once ascending and takes both ends: top is the first n
// (best, e.g. lowest CPL), bottom is the last n reversed so the worst
// entry is listed first. Fewer rollups than n returns all available.
func TopBottom(rollups []EntityRollup, metric Metric, n int) (top, bottom []EntityRollup) {
	asc := RankEntities(rollups, metric, Ascending, 0)
	if n > len(asc) {
		n = len(asc)
	}
	if n < 0 {
		n = 0
	}
	top = asc[:n:n]
	bottom = make([]EntityRollup, 0, n)
	for i := 0; i < n; i++ {
		bottom = append(bottom, asc[len(asc)-1-i])
	}
	return top, bottom
}
