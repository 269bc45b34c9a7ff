package marlin

import (
	"github.com/printhost/marlineeprom/internal/models"
)

// Extraction is one decoded parameter field plus the section it belongs to.
type Extraction struct {
	Section string
	Field   models.ParameterField
}

// Extractor turns firmware response lines into parameter fields. It carries
// per-cycle state for first-match-only families, so callers must Reset it at
// the start of every load, backup and restore cycle.
//
// Extraction is append-only: re-running the same family over two lines in one
// cycle yields duplicate fields. Running the extractor over a given family
// only once per cycle is a caller obligation, not enforced here.
type Extractor struct {
	matched map[string]bool
}

// NewExtractor creates an extractor ready for a fresh cycle.
func NewExtractor() *Extractor {
	return &Extractor{matched: make(map[string]bool)}
}

// Reset clears per-cycle state.
func (e *Extractor) Reset() {
	e.matched = make(map[string]bool)
}

// Extract tries every family pattern of the grammar against the line (no
// short-circuit) and decodes each named capture slot of every match into one
// parameter field. With clearOriginal set, OriginalValue is left empty so the
// imported value reads as pending rather than device-confirmed; used when
// replaying a restore blob.
func (e *Extractor) Extract(line string, grammar *Grammar, clearOriginal bool) []Extraction {
	var out []Extraction
	for i := range grammar.Families {
		fam := &grammar.Families[i]
		m := fam.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if fam.FirstMatchOnly {
			if e.matched[fam.Command] {
				continue
			}
			e.matched[fam.Command] = true
		}

		for _, s := range fam.Slots {
			idx := fam.Pattern.SubexpIndex(s.Tag)
			if idx < 0 {
				continue
			}
			value := m[idx]
			if value == "" {
				// Optional slot the firmware build omits.
				continue
			}

			field := models.ParameterField{
				DataType:     fam.Command + " " + s.Tag,
				Label:        s.Label,
				Unit:         s.Unit,
				Description:  s.Description,
				CurrentValue: value,
			}
			if !clearOriginal {
				field.OriginalValue = value
			}
			out = append(out, Extraction{Section: fam.Section, Field: field})
		}
	}
	return out
}
