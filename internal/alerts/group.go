package alerts

import (
	"time"

	"github.com/google/uuid"

	"transit-aggregator/pkg/models"
)

// Index is the alert set of one upstream refresh, grouped for merging.
// Generation changes on every refresh; anything derived from an Index
// must be rebuilt when it no longer matches.
type Index struct {
	Generation string                    `json:"generation"`
	ByLine     map[string][]models.Alert `json:"by_line"`
	StopOnly   []models.Alert            `json:"stop_only"`
}

// NewIndex groups alerts by line. Alerts whose entities name stations but
// no line are kept apart in StopOnly.
func NewIndex(alerts []models.Alert) Index {
	idx := Index{
		Generation: uuid.NewString(),
		ByLine:     GroupByLine(alerts),
	}
	for _, alert := range alerts {
		if len(StopOnlyStations(alert)) > 0 {
			idx.StopOnly = append(idx.StopOnly, alert)
		}
	}
	return idx
}

// StopOnlyStations lists the station codes an alert names without a line
func StopOnlyStations(alert models.Alert) []string {
	var codes []string
	for _, e := range alert.AffectedEntities {
		if e.LineName == "" && e.LineCode == "" && e.StationCode != "" {
			codes = append(codes, e.StationCode)
		}
	}
	return codes
}

// GroupByLine indexes alerts by affected line name. An alert that names
// the same line through several entities is attributed to it once.
func GroupByLine(alerts []models.Alert) map[string][]models.Alert {
	byLine := make(map[string][]models.Alert)
	for _, alert := range alerts {
		seen := make(map[string]struct{})
		for _, e := range alert.AffectedEntities {
			if e.LineName == "" {
				continue
			}
			if _, ok := seen[e.LineName]; ok {
				continue
			}
			seen[e.LineName] = struct{}{}
			byLine[e.LineName] = append(byLine[e.LineName], alert)
		}
	}
	return byLine
}

// Active drops alerts that already ended
func Active(alerts []models.Alert, now time.Time) []models.Alert {
	var out []models.Alert
	for _, a := range alerts {
		if !a.IsExpired(now) {
			out = append(out, a)
		}
	}
	return out
}
