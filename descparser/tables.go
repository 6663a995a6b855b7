package descparser

import "regexp"

// abbreviation is one row of an ordered lookup table. Rows are scanned top to
// bottom and the first whole-word hit wins, so row order is part of the
// parser's output and must not be re-sorted.
type abbreviation struct {
	code  string
	label string
	re    *regexp.Regexp
}

func table(rows ...[2]string) []abbreviation {
	out := make([]abbreviation, len(rows))
	for i, r := range rows {
		out[i] = abbreviation{
			code:  r[0],
			label: r[1],
			re:    regexp.MustCompile(`\b` + regexp.QuoteMeta(r[0]) + `\b`),
		}
	}
	return out
}

var forms = table(
	[2]string{"SOLN", "Solution"},
	[2]string{"SOLR", "Solution Reconstituted"},
	[2]string{"SOSY", "Prefilled Syringe"},
	[2]string{"SUSP", "Suspension"},
	[2]string{"SUSR", "Suspension Reconstituted"},
	[2]string{"TABS", "Tablet"},
	[2]string{"TBEC", "Tablet Delayed Release"},
	[2]string{"TBCR", "Tablet Extended Release"},
	[2]string{"TB24", "Tablet 24 Hour"},
	[2]string{"TAB", "Tablet"},
	[2]string{"CAPS", "Capsule"},
	[2]string{"CPEP", "Capsule Delayed Release"},
	[2]string{"CP24", "Capsule 24 Hour"},
	[2]string{"CAP", "Capsule"},
	[2]string{"INJ", "Injection"},
	[2]string{"CREA", "Cream"},
	[2]string{"OINT", "Ointment"},
	[2]string{"GEL", "Gel"},
	[2]string{"LOTN", "Lotion"},
	[2]string{"PTCH", "Patch"},
	[2]string{"SUPP", "Suppository"},
	[2]string{"AERO", "Aerosol"},
	[2]string{"NEBU", "Nebulizer Solution"},
	[2]string{"POWD", "Powder"},
	[2]string{"ELIX", "Elixir"},
	[2]string{"SYRP", "Syrup"},
	[2]string{"LIQD", "Liquid"},
	[2]string{"EMUL", "Emulsion"},
	[2]string{"DROP", "Drops"},
	[2]string{"LOZG", "Lozenge"},
	[2]string{"KIT", "Kit"},
)

var routes = table(
	[2]string{"PO", "Oral"},
	[2]string{"IV", "Intravenous"},
	[2]string{"IM", "Intramuscular"},
	[2]string{"SC", "Subcutaneous"},
	[2]string{"SQ", "Subcutaneous"},
	[2]string{"TD", "Transdermal"},
	[2]string{"TOP", "Topical"},
	[2]string{"PR", "Rectal"},
	[2]string{"RE", "Rectal"},
	[2]string{"SL", "Sublingual"},
	[2]string{"INH", "Inhalation"},
	[2]string{"NA", "Nasal"},
	[2]string{"OP", "Ophthalmic"},
	[2]string{"OT", "Otic"},
	[2]string{"VAG", "Vaginal"},
	[2]string{"EX", "External"},
)

// firstMatch returns the first table row found in text as a whole word.
func firstMatch(rows []abbreviation, text string) (abbreviation, bool) {
	for _, r := range rows {
		if r.re.MatchString(text) {
			return r, true
		}
	}
	return abbreviation{}, false
}
