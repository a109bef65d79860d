package kpi

import (
	"fmt"
	"sort"
	"time"

	"github.com/kpiboard/kpiboard/internal/models"
)

// BucketKeyFunc maps a row's date to a time-bucket label.
type BucketKeyFunc func(time.Time) string

func DailyKey(t time.Time) string { return t.Format("2006-01-02") }

func ISOWeekKey(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// WeekdayKey labels a row by short weekday name, for the weekly chart.
func WeekdayKey(t time.Time) string { return t.Weekday().String()[:3] }

// TimeBucket is a rollup of all rows sharing one bucket key. Date is the
// earliest row date seen in the bucket and drives result ordering.
type TimeBucket struct {
	Key  string
	Date time.Time
	Sums
	Ratios
	Rows int
}

// AggregateByTime groups rows by keyFn, sums each bucket and derives the
// bucket's rates from its own sums. The result is sorted ascending by the
// bucket's underlying date regardless of input order; the sort is stable.
// Empty input yields an empty slice, not an error.
func AggregateByTime(rows []models.FactRow, keyFn BucketKeyFunc) []TimeBucket {
	idx := make(map[string]int, len(rows))
	out := []TimeBucket{}
	for _, r := range rows {
		k := keyFn(r.Date)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, TimeBucket{Key: k, Date: r.Date})
		}
		b := &out[i]
		if r.Date.Before(b.Date) {
			b.Date = r.Date
		}
		b.Sums.Add(r)
		b.Rows++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	for i := range out {
		out[i].Ratios = DeriveRatios(out[i].Sums)
	}
	return out
}

// EntityKind selects the aggregation dimension. ByCreative merges a
// creative across campaigns; ByCampaignCreative keeps one rollup per
// (campaign, creative) pair, so a creative reused by two campaigns
// stays two rows and each campaign gets its own unattributed bucket.
type EntityKind int

const (
	ByCampaign EntityKind = iota
	ByCreative
	ByCampaignCreative
)

// EntityRollup is an aggregate over one campaign or creative. For an
// unattributed-creative bucket, ID is empty and Unattributed is set.
// CampaignID/CampaignName carry the first-seen parent campaign on
// ByCreative rollups and the owning campaign on ByCampaignCreative
// rollups.
type EntityRollup struct {
	ID           string
	Name         string
	Unattributed bool
	CampaignID   string
	CampaignName string
	Sums
	Ratios
	Rows int
}

type entityKey struct {
	campaign string
	id       string
	unattr   bool
}

// AggregateByEntity accumulates rows per campaign or per creative.
// Creative rows without a creative id land in an unattributed bucket
// rather than being dropped (one shared bucket for ByCreative, one per
// campaign for ByCampaignCreative); rows without a campaign id are
// skipped. The first non-empty display name seen wins, with the id as
// fallback. Result order is first-seen order, which is also the rank
// tie-break order.
func AggregateByEntity(rows []models.FactRow, kind EntityKind) []EntityRollup {
	idx := make(map[entityKey]int, len(rows))
	out := []EntityRollup{}
	for _, r := range rows {
		if r.CampaignID == "" {
			continue
		}
		k := entityKey{id: r.CampaignID}
		switch kind {
		case ByCreative, ByCampaignCreative:
			if r.CreativeID != nil && *r.CreativeID != "" {
				k = entityKey{id: *r.CreativeID}
			} else {
				k = entityKey{unattr: true}
			}
			if kind == ByCampaignCreative {
				k.campaign = r.CampaignID
			}
		}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, EntityRollup{ID: k.id, Unattributed: k.unattr})
		}
		e := &out[i]
		if e.Name == "" {
			e.Name = displayName(r, kind)
		}
		if e.CampaignID == "" {
			e.CampaignID = r.CampaignID
		}
		if e.CampaignName == "" && r.CampaignName != nil {
			e.CampaignName = *r.CampaignName
		}
		e.Sums.Add(r)
		e.Rows++
	}
	for i := range out {
		if out[i].Name == "" {
			if out[i].Unattributed {
				out[i].Name = "Unattributed"
			} else {
				out[i].Name = out[i].ID
			}
		}
		out[i].Ratios = DeriveRatios(out[i].Sums)
	}
	return out
}

func displayName(r models.FactRow, kind EntityKind) string {
	if kind != ByCampaign {
		if r.CreativeName != nil {
			return *r.CreativeName
		}
		return ""
	}
	if r.CampaignName != nil {
		return *r.CampaignName
	}
	return ""
}

// Rollup is the single-bucket total used for headline KPI cards.
type Rollup struct {
	Sums
	Ratios
	Rows int
}

// Summarize folds all rows into one rollup, sharing the same derivation
// as the time and entity aggregations.
func Summarize(rows []models.FactRow) Rollup {
	var out Rollup
	for _, r := range rows {
		out.Sums.Add(r)
		out.Rows++
	}
	out.Ratios = DeriveRatios(out.Sums)
	return out
}
