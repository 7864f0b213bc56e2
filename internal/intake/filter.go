package intake

import (
	"github.com/sells-group/records-cli/internal/model"
)

// Filter narrows the entries selected for a run. Zero values disable a
// criterion.
type Filter struct {
	Rank     int
	FormType model.FormType
	CensusID string
	Limit    int
}

// Apply filters by rank, form type and census id, in that order, then caps
// the result at Limit.
func (f Filter) Apply(entries []model.FormEntry) []model.FormEntry {
	out := make([]model.FormEntry, 0, len(entries))
	for _, e := range entries {
		if f.Rank > 0 && e.Rank != f.Rank {
			continue
		}
		if f.FormType != "" && e.FormType != f.FormType {
			continue
		}
		if f.CensusID != "" && e.CensusID != f.CensusID {
			continue
		}
		out = append(out, e)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// InputStats describes an input file.
type InputStats struct {
	Total          int                    `json:"total_entries" yaml:"total_entries"`
	Municipalities int                    `json:"unique_municipalities" yaml:"unique_municipalities"`
	ByFormType     map[model.FormType]int `json:"by_form_type" yaml:"by_form_type"`
	ByState        map[string]int         `json:"by_state" yaml:"by_state"`
}

// Summarize counts entries by form type and state.
func Summarize(entries []model.FormEntry) InputStats {
	stats := InputStats{
		Total:      len(entries),
		ByFormType: make(map[model.FormType]int),
		ByState:    make(map[string]int),
	}
	munis := make(map[string]struct{})
	for _, e := range entries {
		munis[e.CensusID] = struct{}{}
		ft := e.FormType
		if ft == "" {
			ft = "UNKNOWN"
		}
		stats.ByFormType[ft]++
		stats.ByState[e.State]++
	}
	stats.Municipalities = len(munis)
	return stats
}
