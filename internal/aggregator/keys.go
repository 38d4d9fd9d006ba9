package aggregator

import (
	"fmt"

	"transit-aggregator/pkg/models"
)

// Cache keys are namespaced by mode so every mode shares one store.

func LinesStaticKey(mode models.TransportType) string {
	return fmt.Sprintf("%s_lines_static", mode)
}

func LinesAlertsKey(mode models.TransportType) string {
	return fmt.Sprintf("%s_lines_alerts", mode)
}

func StationsStaticKey(mode models.TransportType) string {
	return fmt.Sprintf("%s_stations_static", mode)
}

func StationsAlertsKey(mode models.TransportType) string {
	return fmt.Sprintf("%s_stations_alerts", mode)
}

func LineStationsKey(mode models.TransportType, lineCode string) string {
	return fmt.Sprintf("%s_line_%s_stations", mode, lineCode)
}

func ConnectionsKey(mode models.TransportType, lineCode, stationCode string) string {
	return fmt.Sprintf("%s_connections_%s_%s", mode, lineCode, stationCode)
}

func RoutesKey(mode models.TransportType, stationCode string) string {
	return fmt.Sprintf("%s_routes_%s", mode, stationCode)
}
