package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"transit-aggregator/internal/timeutil"
	"transit-aggregator/pkg/models"
)

// Normalize maps raw payloads of any known format to canonical alerts.
// Payloads that cannot be decoded are skipped and reported in the joined
// error; the alerts of every other payload are still returned.
func Normalize(raws []RawAlert) ([]models.Alert, error) {
	var (
		out  []models.Alert
		errs []error
	)
	for _, raw := range raws {
		alerts, err := normalizeOne(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s payload: %w", raw.Format, err))
			continue
		}
		out = append(out, alerts...)
	}
	return out, errors.Join(errs...)
}

func normalizeOne(raw RawAlert) ([]models.Alert, error) {
	switch raw.Format {
	case FormatMetro:
		return FromTMBMetro(raw.Payload)
	case FormatBus:
		return FromTMBBus(raw.Payload)
	case FormatTram:
		return FromTram(raw.Payload)
	case FormatRodalies:
		return FromRodalies(raw.Payload)
	default:
		return nil, fmt.Errorf("unknown alert format %q", raw.Format)
	}
}

// FromTMBMetro maps the TMB metro alert channel
func FromTMBMetro(payload []byte) ([]models.Alert, error) {
	return fromTMB(payload, models.TransportMetro, func(e tmbEntity) models.AffectedEntity {
		return models.AffectedEntity{
			LineCode:    e.LineCode,
			LineName:    e.LineName,
			StationCode: e.StationCode,
			StationName: CleanText(e.StationName),
			Direction:   CleanText(e.DirectionName),
			Entrance:    CleanText(e.EntranceName),
		}
	})
}

// FromTMBBus maps the TMB bus alert channel; bus entities name stops
func FromTMBBus(payload []byte) ([]models.Alert, error) {
	return fromTMB(payload, models.TransportBus, func(e tmbEntity) models.AffectedEntity {
		return models.AffectedEntity{
			LineCode:    e.LineCode,
			LineName:    e.LineName,
			StationCode: e.StopCode,
			StationName: CleanText(e.StopName),
			Direction:   CleanText(e.DirectionName),
		}
	})
}

func fromTMB(payload []byte, transport models.TransportType, entity func(tmbEntity) models.AffectedEntity) ([]models.Alert, error) {
	var resp tmbResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode TMB alerts: %w", err)
	}

	out := make([]models.Alert, 0, len(resp.Data.Alerts))
	for _, a := range resp.Data.Alerts {
		alert := models.Alert{
			ID:            strconv.FormatInt(a.ID, 10),
			TransportType: transport,
			BeginDate:     timeutil.FromEpochMillis(a.BeginDate),
			EndDate:       timeutil.FromEpochMillis(a.EndDate),
			Status:        a.Status,
			Cause:         CleanText(a.Cause),
		}
		for _, p := range a.Publications {
			alert.Publications = append(alert.Publications, tmbPublications(p)...)
			for _, e := range p.AffectedEntities {
				alert.AffectedEntities = append(alert.AffectedEntities, entity(e))
			}
		}
		out = append(out, alert)
	}
	return out, nil
}

func tmbPublications(p tmbPublication) []models.Publication {
	var out []models.Publication
	for _, lang := range []struct{ code, header, text string }{
		{"ca", p.HeaderCa, p.TextCa},
		{"es", p.HeaderEs, p.TextEs},
		{"en", p.HeaderEn, p.TextEn},
	} {
		if lang.header == "" && lang.text == "" {
			continue
		}
		out = append(out, models.Publication{
			Language: lang.code,
			Header:   CleanText(lang.header),
			Text:     CleanText(lang.text),
		})
	}
	return out
}

// FromTram maps TRAM network incidents, flattening line -> direction -> stop
// into one affected entity per (line, stop)
func FromTram(payload []byte) ([]models.Alert, error) {
	var incidents []tramAlert
	if err := json.Unmarshal(payload, &incidents); err != nil {
		return nil, fmt.Errorf("failed to decode TRAM alerts: %w", err)
	}

	out := make([]models.Alert, 0, len(incidents))
	for _, a := range incidents {
		lang := a.Language
		if lang == "" {
			lang = "ca"
		}
		alert := models.Alert{
			ID:            strconv.FormatInt(a.ID, 10),
			TransportType: models.TransportTram,
			BeginDate:     timeutil.FromEpochMillis(a.StartDate),
			EndDate:       timeutil.FromEpochMillis(a.EndDate),
			Status:        a.Status,
			Cause:         CleanText(a.Cause),
			Publications: []models.Publication{{
				Language: lang,
				Header:   CleanText(a.Title),
				Text:     CleanText(a.Description),
			}},
		}
		for _, line := range a.Lines {
			before := len(alert.AffectedEntities)
			for _, dir := range line.Directions {
				for _, stop := range dir.Stops {
					alert.AffectedEntities = append(alert.AffectedEntities, models.AffectedEntity{
						LineCode:    line.ID,
						LineName:    line.Name,
						StationCode: stop.Code,
						StationName: CleanText(stop.Name),
						Direction:   CleanText(dir.Name),
					})
				}
			}
			if len(alert.AffectedEntities) == before {
				// the whole line is affected
				alert.AffectedEntities = append(alert.AffectedEntities, models.AffectedEntity{
					LineCode: line.ID,
					LineName: line.Name,
				})
			}
		}
		out = append(out, alert)
	}
	return out, nil
}

// FromRodalies maps a GTFS-Realtime service alerts feed
func FromRodalies(payload []byte) ([]models.Alert, error) {
	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(payload, feed); err != nil {
		return nil, fmt.Errorf("failed to decode GTFS-RT feed: %w", err)
	}

	out := make([]models.Alert, 0, len(feed.GetEntity()))
	for _, entity := range feed.GetEntity() {
		a := entity.GetAlert()
		if a == nil || entity.GetIsDeleted() {
			continue
		}

		alert := models.Alert{
			ID:            entity.GetId(),
			TransportType: models.TransportRodalies,
			Status:        a.GetEffect().String(),
			Cause:         a.GetCause().String(),
			Publications:  gtfsrtPublications(a),
		}
		if periods := a.GetActivePeriod(); len(periods) > 0 {
			alert.BeginDate = timeutil.FromEpochSeconds(int64(periods[0].GetStart()))
			alert.EndDate = timeutil.FromEpochSeconds(int64(periods[len(periods)-1].GetEnd()))
		}
		for _, ie := range a.GetInformedEntity() {
			alert.AffectedEntities = append(alert.AffectedEntities, models.AffectedEntity{
				LineCode:    ie.GetRouteId(),
				LineName:    ie.GetRouteId(),
				StationCode: ie.GetStopId(),
			})
		}
		out = append(out, alert)
	}
	return out, nil
}

func gtfsrtPublications(a *gtfsrt.Alert) []models.Publication {
	byLang := make(map[string]*models.Publication)
	var order []string
	get := func(lang string) *models.Publication {
		if lang == "" {
			lang = "ca"
		}
		p, ok := byLang[lang]
		if !ok {
			p = &models.Publication{Language: lang}
			byLang[lang] = p
			order = append(order, lang)
		}
		return p
	}

	for _, tr := range a.GetHeaderText().GetTranslation() {
		get(tr.GetLanguage()).Header = CleanText(tr.GetText())
	}
	for _, tr := range a.GetDescriptionText().GetTranslation() {
		get(tr.GetLanguage()).Text = CleanText(tr.GetText())
	}

	out := make([]models.Publication, 0, len(order))
	for _, lang := range order {
		out = append(out, *byLang[lang])
	}
	return out
}
