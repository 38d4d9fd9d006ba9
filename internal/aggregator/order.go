package aggregator

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"transit-aggregator/pkg/models"
)

// naturalLess orders codes so that "L2" < "L10" and "R2N" < "R11"
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, restA := chunk(a)
		cb, restB := chunk(b)
		if ca != cb {
			na, errA := strconv.Atoi(ca)
			nb, errB := strconv.Atoi(cb)
			if errA == nil && errB == nil {
				if na != nb {
					return na < nb
				}
			} else {
				return ca < cb
			}
		}
		a, b = restA, restB
	}
	return len(a) < len(b)
}

// chunk splits off the leading run of digits or non-digits
func chunk(s string) (string, string) {
	digit := unicode.IsDigit(rune(s[0]))
	i := 1
	for i < len(s) && unicode.IsDigit(rune(s[i])) == digit {
		i++
	}
	return s[:i], s[i:]
}

func sortLines(lines []models.Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		return naturalLess(lines[i].Code, lines[j].Code)
	})
}

func sortStations(stations []models.Station) {
	sort.SliceStable(stations, func(i, j int) bool {
		a, b := stations[i], stations[j]
		if a.LineCode != b.LineCode {
			return naturalLess(a.LineCode, b.LineCode)
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return naturalLess(a.Code, b.Code)
	})
}

func sortRoutes(routes []models.Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].ArrivalTime < routes[j].ArrivalTime
	})
}

// fold lowercases s and strips diacritics, so "Plaça" matches "placa"
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
