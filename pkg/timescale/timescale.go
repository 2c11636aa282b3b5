// Package timescale provides the International Chronostratigraphic Chart
// units relevant to the tracker's age range, so ages in Ma can be labeled
// and colored the way geologists expect.
package timescale

import "fmt"

// Rank is the hierarchical level of a chart unit.
type Rank string

const (
	RankEon    Rank = "eon"
	RankEra    Rank = "era"
	RankPeriod Rank = "period"
)

// Unit is one named interval of geologic time. StartMa is the older
// boundary, EndMa the younger one; StartMa > EndMa always.
type Unit struct {
	Name    string  `json:"name"`
	Abbrev  string  `json:"abbrev"`
	Rank    Rank    `json:"rank"`
	StartMa float64 `json:"start_ma"`
	EndMa   float64 `json:"end_ma"`
	// Color is the ICS chart hex color for rendering age bars.
	Color string `json:"color"`
}

// Contains reports whether ageMa falls inside the unit. A boundary age
// belongs to the older unit, matching how the chart reads.
func (u Unit) Contains(ageMa float64) bool {
	return ageMa >= u.EndMa && ageMa < u.StartMa
}

// Boundary ages follow the ICS chart, v2023/09.
var eons = []Unit{
	{"Phanerozoic", "PH", RankEon, 538.8, 0, "#9AD9DD"},
	{"Proterozoic", "PR", RankEon, 2500, 538.8, "#F73563"},
	{"Archean", "AR", RankEon, 4000, 2500, "#F0047F"},
	{"Hadean", "HD", RankEon, 4600, 4000, "#AE027E"},
}

var eras = []Unit{
	{"Cenozoic", "CZ", RankEra, 66, 0, "#F2F91D"},
	{"Mesozoic", "MZ", RankEra, 251.902, 66, "#67C5CA"},
	{"Paleozoic", "PZ", RankEra, 538.8, 251.902, "#99C08D"},
	{"Neoproterozoic", "NP", RankEra, 1000, 538.8, "#FEB342"},
	{"Mesoproterozoic", "MP", RankEra, 1600, 1000, "#FDB462"},
	{"Paleoproterozoic", "PP", RankEra, 2500, 1600, "#F74370"},
}

var periods = []Unit{
	{"Quaternary", "Q", RankPeriod, 2.58, 0, "#F9F97F"},
	{"Neogene", "N", RankPeriod, 23.03, 2.58, "#FFE619"},
	{"Paleogene", "Pg", RankPeriod, 66, 23.03, "#FD9A52"},
	{"Cretaceous", "K", RankPeriod, 145, 66, "#7FC64E"},
	{"Jurassic", "J", RankPeriod, 201.4, 145, "#34B2C9"},
	{"Triassic", "Tr", RankPeriod, 251.902, 201.4, "#812B92"},
	{"Permian", "P", RankPeriod, 298.9, 251.902, "#F04028"},
	{"Carboniferous", "C", RankPeriod, 358.9, 298.9, "#67A599"},
	{"Devonian", "D", RankPeriod, 419.2, 358.9, "#CB8C37"},
	{"Silurian", "S", RankPeriod, 443.8, 419.2, "#B3E1B6"},
	{"Ordovician", "O", RankPeriod, 485.4, 443.8, "#009270"},
	{"Cambrian", "Cm", RankPeriod, 538.8, 485.4, "#7FA056"},
	{"Ediacaran", "Ed", RankPeriod, 635, 538.8, "#FED96A"},
	{"Cryogenian", "Cr", RankPeriod, 720, 635, "#FECC5C"},
	{"Tonian", "To", RankPeriod, 1000, 720, "#FEBF4E"},
	{"Stenian", "St", RankPeriod, 1200, 1000, "#FED99A"},
}

// Chart returns all known units, eons first, each rank ordered from
// youngest to oldest.
func Chart() []Unit {
	out := make([]Unit, 0, len(eons)+len(eras)+len(periods))
	out = append(out, eons...)
	out = append(out, eras...)
	out = append(out, periods...)
	return out
}

// PeriodAt returns the period containing ageMa.
func PeriodAt(ageMa float64) (Unit, bool) { return find(periods, ageMa) }

// EraAt returns the era containing ageMa.
func EraAt(ageMa float64) (Unit, bool) { return find(eras, ageMa) }

// EonAt returns the eon containing ageMa.
func EonAt(ageMa float64) (Unit, bool) { return find(eons, ageMa) }

// Label renders a human-readable tag for an age, like
// "66.0 Ma (Paleogene, Cenozoic)". Falls back to the eon for ages older
// than the youngest catalogued period.
func Label(ageMa float64) string {
	if p, ok := PeriodAt(ageMa); ok {
		if e, ok := EraAt(ageMa); ok {
			return formatLabel(ageMa, p.Name, e.Name)
		}
		return formatLabel(ageMa, p.Name, "")
	}
	if e, ok := EonAt(ageMa); ok {
		return formatLabel(ageMa, e.Name, "")
	}
	return formatLabel(ageMa, "", "")
}

func formatLabel(ageMa float64, primary, secondary string) string {
	switch {
	case primary == "":
		return fmt.Sprintf("%.1f Ma", ageMa)
	case secondary == "":
		return fmt.Sprintf("%.1f Ma (%s)", ageMa, primary)
	default:
		return fmt.Sprintf("%.1f Ma (%s, %s)", ageMa, primary, secondary)
	}
}

func find(units []Unit, ageMa float64) (Unit, bool) {
	for _, u := range units {
		if u.Contains(ageMa) {
			return u, true
		}
	}
	return Unit{}, false
}
