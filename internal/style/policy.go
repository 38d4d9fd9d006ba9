// Package style maps lines to their display emoji and color. It is a pure
// lookup table kept apart from the data model.
package style

import (
	"strings"

	"transit-aggregator/pkg/models"
)

// Style is the display decoration of one line
type Style struct {
	Emoji string `json:"emoji"`
	Color string `json:"color"`
}

type key struct {
	transport models.TransportType
	name      string
}

// Policy resolves (transport type, line name) to a Style
type Policy struct {
	lines map[key]Style
	modes map[models.TransportType]Style
}

// NewPolicy returns an empty policy that only knows the mode defaults
func NewPolicy() *Policy {
	return &Policy{
		lines: make(map[key]Style),
		modes: map[models.TransportType]Style{
			models.TransportMetro:    {Emoji: "🚇", Color: "#E1393E"},
			models.TransportBus:      {Emoji: "🚌", Color: "#DC241F"},
			models.TransportTram:     {Emoji: "🚊", Color: "#008E78"},
			models.TransportRodalies: {Emoji: "🚆", Color: "#F08A00"},
			models.TransportFGC:      {Emoji: "🚞", Color: "#97D700"},
			models.TransportBicing:   {Emoji: "🚲", Color: "#D32F2F"},
		},
	}
}

// DefaultPolicy knows the Barcelona metro and Rodalies line colors
func DefaultPolicy() *Policy {
	p := NewPolicy()
	for name, s := range map[string]Style{
		"L1":   {Emoji: "🟥", Color: "#E1393E"},
		"L2":   {Emoji: "🟪", Color: "#9A3B96"},
		"L3":   {Emoji: "🟩", Color: "#1BA145"},
		"L4":   {Emoji: "🟨", Color: "#F6C200"},
		"L5":   {Emoji: "🟦", Color: "#0076BF"},
		"L9N":  {Emoji: "🟧", Color: "#F68E1E"},
		"L9S":  {Emoji: "🟧", Color: "#F68E1E"},
		"L10N": {Emoji: "🟦", Color: "#00A6D6"},
		"L10S": {Emoji: "🟦", Color: "#00A6D6"},
		"L11":  {Emoji: "🟩", Color: "#89B94C"},
		"FM":   {Emoji: "🟩", Color: "#004C38"},
	} {
		p.Register(models.TransportMetro, name, s)
	}
	for name, color := range map[string]string{
		"R1":  "#7DBCEC",
		"R2":  "#26A741",
		"R3":  "#E63027",
		"R4":  "#F7A30E",
		"R7":  "#B57CBB",
		"R8":  "#88016A",
		"R11": "#0069AA",
	} {
		p.Register(models.TransportRodalies, name, Style{Emoji: "🚆", Color: color})
	}
	return p
}

// Register sets the style of one line
func (p *Policy) Register(transport models.TransportType, lineName string, s Style) {
	p.lines[key{transport, normalize(lineName)}] = s
}

// Lookup returns the style of a line, falling back to the mode default
// and to the line's own upstream color
func (p *Policy) Lookup(transport models.TransportType, lineName, upstreamColor string) Style {
	if s, ok := p.lines[key{transport, normalize(lineName)}]; ok {
		return s
	}

	s := p.modes[transport]
	if upstreamColor != "" {
		s.Color = withHash(upstreamColor)
	}
	return s
}

// NameWithEmoji decorates a line name for display
func (p *Policy) NameWithEmoji(line models.Line) string {
	s := p.Lookup(line.TransportType, line.Name, line.Color)
	if s.Emoji == "" {
		return line.Name
	}
	return s.Emoji + " " + line.Name
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func withHash(color string) string {
	if strings.HasPrefix(color, "#") {
		return color
	}
	return "#" + color
}
