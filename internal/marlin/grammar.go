package marlin

import (
	"regexp"
	"strings"

	"github.com/printhost/marlineeprom/internal/models"
)

// Slot binds one named capture of a line pattern to an axis or role tag plus
// its display metadata. Optional slots may be absent from a matched line
// (e.g. the bed-leveling fade height on builds that do not report it).
type Slot struct {
	Tag         string
	Label       string
	Unit        string
	Description string
	Optional    bool
}

// Family is one configuration command family: the command token, the section
// its fields belong to, and the pattern that recognizes its dump line.
type Family struct {
	Command string
	Section string
	Pattern *regexp.Regexp
	Slots   []Slot

	// FirstMatchOnly families ignore every match after the first one in a
	// cycle (filament diameter is reported once per extruder; only the
	// first extruder is editable here).
	FirstMatchOnly bool
}

// Grammar is the complete ordered set of family patterns valid for one
// firmware identity group. Families absent for a firmware simply never match.
type Grammar struct {
	Name     string
	Families []Family
}

// Family looks up a family by command token.
func (g *Grammar) Family(command string) (*Family, bool) {
	for i := range g.Families {
		if g.Families[i].Command == command {
			return &g.Families[i], true
		}
	}
	return nil, false
}

const number = `-?\d+(?:\.\d+)?`

// compile builds the line pattern for a family: the command token followed by
// one "<tag><number>" group per slot, optional slots wrapped in (?:...)?.
func compile(command string, slots []Slot) *regexp.Regexp {
	var b strings.Builder
	b.WriteString(regexp.QuoteMeta(command))
	for _, s := range slots {
		group := `\s+` + regexp.QuoteMeta(s.Tag) + `(?P<` + s.Tag + `>` + number + `)`
		if s.Optional {
			group = `(?:` + group + `)?`
		}
		b.WriteString(group)
	}
	return regexp.MustCompile(b.String())
}

func family(command, section string, slots ...Slot) Family {
	return Family{
		Command: command,
		Section: section,
		Pattern: compile(command, slots),
		Slots:   slots,
	}
}

func slot(tag, label, unit, description string) Slot {
	return Slot{Tag: tag, Label: label, Unit: unit, Description: description}
}

func axisSlots(unit, description string, tags ...string) []Slot {
	slots := make([]Slot, 0, len(tags))
	for _, t := range tags {
		slots = append(slots, slot(t, t, unit, description))
	}
	return slots
}

func stepsFamily() Family {
	return family("M92", models.SectionSteps, axisSlots("mm", "steps per unit", "X", "Y", "Z", "E")...)
}

func feedrateFamily() Family {
	return family("M203", models.SectionFeedrate, axisSlots("mm/s", "maximum feedrate", "X", "Y", "Z", "E")...)
}

func maxAccelFamily() Family {
	return family("M201", models.SectionAccelMax, axisSlots("mm/s2", "maximum acceleration", "X", "Y", "Z", "E")...)
}

func accelFamily() Family {
	return family("M204", models.SectionAccel,
		slot("P", "Print", "mm/s2", "acceleration"),
		slot("R", "Retract", "mm/s2", "acceleration"),
		slot("T", "Travel", "mm/s2", "acceleration"),
	)
}

// legacyAccelFamily covers the pre-1.1 M204 report with only the default and
// retract accelerations.
func legacyAccelFamily() Family {
	return family("M204", models.SectionAccel,
		slot("S", "Print", "mm/s2", "acceleration"),
		slot("T", "Retract", "mm/s2", "acceleration"),
	)
}

func advancedSlots(withY, withJunction bool) []Slot {
	slots := []Slot{
		slot("S", "Min feedrate", "mm/s", "advanced"),
		slot("T", "Min travel feedrate", "mm/s", "advanced"),
		slot("B", "Min segment time", "ms", "advanced"),
		slot("X", "X jerk", "mm/s", "advanced"),
	}
	if withY {
		slots = append(slots, slot("Y", "Y jerk", "mm/s", "advanced"))
	}
	slots = append(slots,
		slot("Z", "Z jerk", "mm/s", "advanced"),
		slot("E", "E jerk", "mm/s", "advanced"),
	)
	if withJunction {
		slots = append(slots, slot("J", "Junction deviation", "mm", "advanced"))
	}
	return slots
}

func homeOffsetFamily() Family {
	return family("M206", models.SectionHomeOffset, axisSlots("mm", "home offset", "X", "Y", "Z")...)
}

func hotendPIDFamily(extra ...string) Family {
	slots := []Slot{
		slot("P", "Kp", "", "hotend PID"),
		slot("I", "Ki", "", "hotend PID"),
		slot("D", "Kd", "", "hotend PID"),
	}
	for _, tag := range extra {
		slots = append(slots, slot(tag, "K"+strings.ToLower(tag), "", "hotend PID"))
	}
	return family("M301", models.SectionPIDHotend, slots...)
}

func bedPIDFamily() Family {
	return family("M304", models.SectionPIDBed,
		slot("P", "Kp", "", "bed PID"),
		slot("I", "Ki", "", "bed PID"),
		slot("D", "Kd", "", "bed PID"),
	)
}

func deltaFamily() Family {
	return family("M665", models.SectionDelta,
		slot("L", "Diagonal rod", "mm", "delta geometry"),
		slot("R", "Radius", "mm", "delta geometry"),
		slot("S", "Segments per second", "1/s", "delta geometry"),
	)
}

func endstopAdjFamily() Family {
	return family("M666", models.SectionEndstopAdj, axisSlots("mm", "endstop adjustment", "X", "Y", "Z")...)
}

func probeOffsetFamily(tags ...string) Family {
	return family("M851", models.SectionProbeOffset, axisSlots("mm", "probe offset", tags...)...)
}

func filamentFamily() Family {
	f := family("M200", models.SectionFilament, slot("D", "Diameter", "mm", "filament diameter"))
	f.FirstMatchOnly = true
	return f
}

func bedLevelingFamily() Family {
	fade := slot("Z", "Fade height", "mm", "bed leveling")
	fade.Optional = true
	return family("M420", models.SectionBedLeveling,
		slot("S", "Enabled", "", "bed leveling"),
		fade,
	)
}

// Each grammar defines every family it supports fully and independently.
// There is no inheritance: the firmware's dump format changed slot order and
// slot presence across releases without a negotiable schema, so the tables
// below are replicated per release group.

func newBugfixGrammar() *Grammar {
	return &Grammar{
		Name: "bugfix-2.0.x",
		Families: []Family{
			stepsFamily(),
			feedrateFamily(),
			maxAccelFamily(),
			accelFamily(),
			family("M205", models.SectionAdvanced, advancedSlots(true, true)...),
			homeOffsetFamily(),
			hotendPIDFamily(),
			bedPIDFamily(),
			deltaFamily(),
			endstopAdjFamily(),
			probeOffsetFamily("X", "Y", "Z"),
			filamentFamily(),
			bedLevelingFamily(),
		},
	}
}

func newStableGrammar(name string) *Grammar {
	return &Grammar{
		Name: name,
		Families: []Family{
			stepsFamily(),
			feedrateFamily(),
			maxAccelFamily(),
			accelFamily(),
			family("M205", models.SectionAdvanced, advancedSlots(true, false)...),
			homeOffsetFamily(),
			hotendPIDFamily(),
			bedPIDFamily(),
			deltaFamily(),
			endstopAdjFamily(),
			probeOffsetFamily("Z"),
			filamentFamily(),
			bedLevelingFamily(),
		},
	}
}

// The 1.1.0 release candidates report no Y jerk and carry the legacy C/L
// hotend PID terms.
func newRCGrammar() *Grammar {
	return &Grammar{
		Name: "1.1.0-RC",
		Families: []Family{
			stepsFamily(),
			feedrateFamily(),
			maxAccelFamily(),
			accelFamily(),
			family("M205", models.SectionAdvanced, advancedSlots(false, false)...),
			homeOffsetFamily(),
			hotendPIDFamily("C", "L"),
			bedPIDFamily(),
			filamentFamily(),
		},
	}
}

// Marlin 1.0.2 predates bed leveling, probe offset and delta reports, uses
// the S/T acceleration pair and has no bed PID.
func newLegacyGrammar() *Grammar {
	return &Grammar{
		Name: "1.0.2",
		Families: []Family{
			stepsFamily(),
			feedrateFamily(),
			maxAccelFamily(),
			legacyAccelFamily(),
			family("M205", models.SectionAdvanced, advancedSlots(false, false)...),
			homeOffsetFamily(),
			hotendPIDFamily("C"),
			filamentFamily(),
		},
	}
}

var (
	bugfixGrammar  = newBugfixGrammar()
	stableGrammar  = newStableGrammar("stable-1.1.x")
	rcGrammar      = newRCGrammar()
	legacyGrammar  = newLegacyGrammar()
	defaultGrammar = newStableGrammar("default")
)

// stableVersions is the contiguous run of numbered releases that share the
// stable grammar.
var stableVersions = map[string]bool{
	"1.1.0": true, "1.1.1": true, "1.1.2": true, "1.1.3": true, "1.1.4": true,
	"1.1.5": true, "1.1.6": true, "1.1.7": true, "1.1.8": true, "1.1.9": true,
}

// Resolve selects the grammar for a firmware identity string such as
// "Marlin bugfix-2.0.x". Every identity resolves: unmatched identities fall
// back to the default grammar, which has the same shape as the latest stable.
func Resolve(identity string) *Grammar {
	version := ""
	if fields := strings.Fields(strings.TrimSpace(identity)); len(fields) >= 2 {
		version = fields[1]
	}

	switch {
	case version == "bugfix-2.0.x":
		return bugfixGrammar
	case stableVersions[version] || strings.HasPrefix(version, "2.0."):
		return stableGrammar
	case strings.HasPrefix(version, "1.1.0-RC"):
		return rcGrammar
	case strings.HasPrefix(version, "1.0.2"):
		return legacyGrammar
	default:
		return defaultGrammar
	}
}
