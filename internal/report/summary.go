package report

import (
	"encoding/json"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/glitch.report/internal/campaign"
)

// ValueRate is the success rate at one value of an axis.
type ValueRate struct {
	Value     float64 `json:"value"`
	Trials    int     `json:"trials"`
	Successes int     `json:"successes"`
	Rate      float64 `json:"rate"`
}

// AxisSummary describes where along one axis the glitch succeeded.
type AxisSummary struct {
	Name   string      `json:"name"`
	Values []ValueRate `json:"values"`
	// SuccessMean and SuccessStdDev locate the successful trials on this
	// axis. Both are NaN without successes.
	SuccessMean   float64 `json:"success_mean"`
	SuccessStdDev float64 `json:"success_stddev"`
}

// MarshalJSON writes NaN statistics as null.
func (a AxisSummary) MarshalJSON() ([]byte, error) {
	type plain AxisSummary
	finite := func(v float64) *float64 {
		if math.IsNaN(v) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		plain
		SuccessMean   *float64 `json:"success_mean"`
		SuccessStdDev *float64 `json:"success_stddev"`
	}{plain(a), finite(a.SuccessMean), finite(a.SuccessStdDev)})
}

// Summary aggregates a campaign result.
type Summary struct {
	ID          string                   `json:"id"`
	Trials      int                      `json:"trials"`
	Counts      map[campaign.Outcome]int `json:"counts"`
	Reasons     map[campaign.Reason]int  `json:"reasons"`
	SuccessRate float64                  `json:"success_rate"`
	Axes        []AxisSummary            `json:"axes"`
}

// Summarize computes per-outcome counts and per-axis success statistics.
func Summarize(res *campaign.Result) Summary {
	recs := res.Records()
	s := Summary{
		ID:      res.ID,
		Trials:  len(recs),
		Counts:  res.Counts(),
		Reasons: make(map[campaign.Reason]int),
	}
	for _, r := range recs {
		s.Reasons[r.Reason]++
	}
	if s.Trials > 0 {
		s.SuccessRate = float64(s.Counts[campaign.Success]) / float64(s.Trials)
	}

	for _, name := range res.Axes {
		byValue := make(map[float64]*ValueRate)
		var hits []float64
		for _, r := range recs {
			v, _ := r.Setting.Get(name)
			vr, ok := byValue[v]
			if !ok {
				vr = &ValueRate{Value: v}
				byValue[v] = vr
			}
			vr.Trials++
			if r.Outcome == campaign.Success {
				vr.Successes++
				hits = append(hits, v)
			}
		}

		ax := AxisSummary{Name: name, SuccessMean: math.NaN(), SuccessStdDev: math.NaN()}
		for _, vr := range byValue {
			vr.Rate = float64(vr.Successes) / float64(vr.Trials)
			ax.Values = append(ax.Values, *vr)
		}
		sort.Slice(ax.Values, func(i, j int) bool { return ax.Values[i].Value < ax.Values[j].Value })
		switch len(hits) {
		case 0:
		case 1:
			ax.SuccessMean, ax.SuccessStdDev = hits[0], 0
		default:
			ax.SuccessMean, ax.SuccessStdDev = stat.MeanStdDev(hits, nil)
		}
		s.Axes = append(s.Axes, ax)
	}
	return s
}
