// Package descparser extracts clinical attributes (name, strength,
// concentration, route, dosage form) from free-text chargemaster
// descriptions such as "HEPARIN 5000 UNITS/ML INJ SC".
//
// The parser is a heuristic over pharmacy naming conventions. It never
// fails: anything it cannot recognize is left empty.
package descparser

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedDescription holds the attributes recognized in a description.
type ParsedDescription struct {
	Name string `json:"name,omitempty"`

	StrengthValue float64 `json:"strength_value,omitempty"`
	StrengthUnit  string  `json:"strength_unit,omitempty"`

	IsConcentration        bool    `json:"is_concentration,omitempty"`
	ConcentrationPerAmount float64 `json:"concentration_per_amount,omitempty"`
	ConcentrationPerUnit   string  `json:"concentration_per_unit,omitempty"`
	Concentration          string  `json:"concentration,omitempty"`

	RouteCode  string `json:"route_code,omitempty"`
	RouteLabel string `json:"route_label,omitempty"`
	FormCode   string `json:"form_code,omitempty"`
	FormLabel  string `json:"form_label,omitempty"`
}

// IsEmpty reports whether nothing was recognized.
func (p ParsedDescription) IsEmpty() bool {
	return p == ParsedDescription{}
}

// Strength renders the strength as "<value> <unit>", or "" when absent.
func (p ParsedDescription) Strength() string {
	if p.StrengthUnit == "" {
		return ""
	}
	return formatNumber(p.StrengthValue) + " " + p.StrengthUnit
}

const number = `(\d[\d,]*(?:\.\d+)?)`

var (
	concentrationRe = regexp.MustCompile(number +
		`\s*((?:INT'?L\s+)?UNITS|MCG|MEQ|MG|G)\b\s*/\s*` +
		`(\d+(?:\.\d+)?)?\s*(ML|L|24HR|HR|ACT|DOSE)?\b`)
	strengthRe = regexp.MustCompile(number + `\s*(?:(MCG|MEQ|MG|G|UNITS)\b|(%))`)
	intlPrefix = regexp.MustCompile(`^INT'?L\s+`)
	nameRe     = regexp.MustCompile(`^([A-Z\s\-]+)\d`)
)

// Parse extracts attributes from text. Matching is case-insensitive and
// only the first match of each pattern is used.
func Parse(text string) ParsedDescription {
	upper := strings.ToUpper(strings.TrimSpace(text))
	if upper == "" {
		return ParsedDescription{}
	}

	var p ParsedDescription

	if f, ok := firstMatch(forms, upper); ok {
		p.FormCode, p.FormLabel = f.code, f.label
	}
	if r, ok := firstMatch(routes, upper); ok {
		p.RouteCode, p.RouteLabel = r.code, r.label
	}

	if !parseConcentration(upper, &p) {
		parseStrength(upper, &p)
	}

	p.Name = parseName(upper)
	return p
}

func parseConcentration(upper string, p *ParsedDescription) bool {
	m := concentrationRe.FindStringSubmatch(upper)
	if m == nil {
		return false
	}

	amount, ok := parseNumber(m[1])
	if !ok {
		return false
	}
	unit := intlPrefix.ReplaceAllString(m[2], "")
	unit = strings.Join(strings.Fields(unit), " ")

	per := 1.0
	if m[3] != "" {
		if v, ok := parseNumber(m[3]); ok && v > 0 {
			per = v
		}
	}
	perUnit := m[4]
	if perUnit == "" {
		perUnit = "ML"
	}

	p.StrengthValue = amount
	p.StrengthUnit = unit
	p.IsConcentration = true
	p.ConcentrationPerAmount = per
	p.ConcentrationPerUnit = perUnit

	divisor := ""
	if per > 1 {
		divisor = formatNumber(per)
	}
	p.Concentration = formatNumber(amount) + " " + unit + "/" + divisor + perUnit
	return true
}

func parseStrength(upper string, p *ParsedDescription) {
	m := strengthRe.FindStringSubmatch(upper)
	if m == nil {
		return
	}
	amount, ok := parseNumber(m[1])
	if !ok {
		return
	}
	p.StrengthValue = amount
	p.StrengthUnit = m[2]
	if p.StrengthUnit == "" {
		p.StrengthUnit = m[3]
	}
}

func parseName(upper string) string {
	if m := nameRe.FindStringSubmatch(upper); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	fields := strings.Fields(upper)
	if len(fields) > 2 {
		fields = fields[:2]
	}
	return strings.Join(fields, " ")
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v, err == nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
