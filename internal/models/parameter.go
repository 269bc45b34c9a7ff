package models

// ParameterField is the atomic editable unit of EEPROM state. DataType doubles
// as the persistence command prefix (e.g. "M92 X" + "80.00" -> "M92 X80.00").
type ParameterField struct {
	DataType      string `json:"dataType"`
	Label         string `json:"label"`
	Unit          string `json:"unit"`
	Description   string `json:"description"`
	OriginalValue string `json:"originalValue"`
	CurrentValue  string `json:"currentValue"`
}

// Dirty reports whether the field has been edited since it was last confirmed
// by the device. Comparison is textual: a formatting-only change counts.
func (f *ParameterField) Dirty() bool {
	return f.CurrentValue != f.OriginalValue
}

// Section identifiers. One section per command family, except the merged
// presence groups below.
const (
	SectionSteps       = "steps"
	SectionFeedrate    = "feedrate"
	SectionAccelMax    = "accel_max"
	SectionAccel       = "accel"
	SectionAdvanced    = "advanced"
	SectionHomeOffset  = "home_offset"
	SectionPIDHotend   = "pid_hotend"
	SectionPIDBed      = "pid_bed"
	SectionDelta       = "delta"
	SectionEndstopAdj  = "endstop_adj"
	SectionProbeOffset = "probe_offset"
	SectionFilament    = "filament"
	SectionBedLeveling = "bed_leveling"
)

// SectionOrder is the stable iteration order used for diffs and API output.
var SectionOrder = []string{
	SectionSteps,
	SectionFeedrate,
	SectionAccelMax,
	SectionAccel,
	SectionAdvanced,
	SectionHomeOffset,
	SectionPIDHotend,
	SectionPIDBed,
	SectionDelta,
	SectionEndstopAdj,
	SectionProbeOffset,
	SectionFilament,
	SectionBedLeveling,
}

// PresenceGroups maps a visibility name to the sections whose union decides
// whether that group has any data. "pid" is present when either the hotend or
// the bed PID section is non-empty; same for the delta geometry pair.
var PresenceGroups = map[string][]string{
	"pid":   {SectionPIDHotend, SectionPIDBed},
	"delta": {SectionDelta, SectionEndstopAdj},
}
