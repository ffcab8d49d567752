package attendance

import (
	"context"
	"math"
	"time"
)

// Stats summarises punctuality over a set of records.
type Stats struct {
	Total      int `json:"total"`
	Present    int `json:"present"`
	Late       int `json:"late"`
	PresentPct int `json:"present_pct"`
	LatePct    int `json:"late_pct"`
}

// Summarize counts on-time and late records with rounded percentages.
func Summarize(recs []Record) Stats {
	st := Stats{Total: len(recs)}
	if st.Total == 0 {
		return st
	}
	for _, r := range recs {
		if r.IsLate {
			st.Late++
		} else {
			st.Present++
		}
	}
	st.PresentPct = int(math.Round(float64(st.Present) / float64(st.Total) * 100))
	st.LatePct = int(math.Round(float64(st.Late) / float64(st.Total) * 100))
	return st
}

// MonthStats is one calendar month of a Monthly breakdown.
type MonthStats struct {
	Month   string `json:"month"`
	Total   int    `json:"total"`
	Present int    `json:"present"`
	Late    int    `json:"late"`
}

// Monthly buckets records by the UTC month they were created in, Jan to Dec.
// A zero year counts every year into the same twelve buckets.
func Monthly(recs []Record, year int) []MonthStats {
	out := make([]MonthStats, 12)
	for i := range out {
		out[i].Month = time.Month(i + 1).String()[:3]
	}
	for _, r := range recs {
		created := r.CreatedAt.UTC()
		if year != 0 && created.Year() != year {
			continue
		}
		m := &out[created.Month()-1]
		m.Total++
		if r.IsLate {
			m.Late++
		} else {
			m.Present++
		}
	}
	return out
}

const statsPage = 500

// Stats walks every record matching f and summarises them.
func (s *Service) Stats(ctx context.Context, f RecordFilter) (Stats, error) {
	all, err := s.allRecords(ctx, f)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(all), nil
}

// Monthly walks every record matching f and buckets them by month.
func (s *Service) Monthly(ctx context.Context, f RecordFilter, year int) ([]MonthStats, error) {
	all, err := s.allRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	return Monthly(all, year), nil
}

func (s *Service) allRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	var all []Record
	f.Limit, f.Offset = statsPage, 0
	for {
		page, err := s.store.ListRecords(ctx, f)
		if err != nil {
			return nil, newError(KindStore, "list records", err)
		}
		all = append(all, page...)
		if len(page) < statsPage {
			return all, nil
		}
		f.Offset += statsPage
	}
}
