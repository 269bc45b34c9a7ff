package eeprom

import (
	"github.com/printhost/marlineeprom/internal/models"
)

// DiffEntry is one pending persistence command: the field's dataType (which
// doubles as the command prefix) and the value to write.
type DiffEntry struct {
	DataType string `json:"dataType"`
	Value    string `json:"value"`
}

// SectionData is the API-facing view of one populated section.
type SectionData struct {
	Name   string                  `json:"name"`
	Fields []models.ParameterField `json:"fields"`
}

// ParameterStore holds the parameter table for one load/backup/restore cycle.
// Field lists are append-only ordered sequences, not maps: duplicate ingestion
// appends rather than replaces (exactly-once extraction per family and cycle
// is the caller's obligation). The store is not safe for concurrent mutation;
// the session's controls flag guarantees at most one active cycle.
type ParameterStore struct {
	sections map[string][]models.ParameterField
}

// NewParameterStore creates an empty store.
func NewParameterStore() *ParameterStore {
	return &ParameterStore{sections: make(map[string][]models.ParameterField)}
}

// Reset discards all sections. Called at the start of every cycle.
func (s *ParameterStore) Reset() {
	s.sections = make(map[string][]models.ParameterField)
}

// Ingest appends a field to the named section.
func (s *ParameterStore) Ingest(section string, field models.ParameterField) {
	s.sections[section] = append(s.sections[section], field)
}

// SetCurrent updates the current value of the first field with the given
// dataType. Returns false when no such field exists.
func (s *ParameterStore) SetCurrent(dataType, value string) bool {
	for _, name := range models.SectionOrder {
		fields := s.sections[name]
		for i := range fields {
			if fields[i].DataType == dataType {
				fields[i].CurrentValue = value
				return true
			}
		}
	}
	return false
}

// Diff yields one entry per dirty field, iterating sections in the stable
// order. Yielded fields have their original value advanced to the current
// value, so an immediate second diff is empty: a save is idempotent.
func (s *ParameterStore) Diff() []DiffEntry {
	var out []DiffEntry
	for _, name := range models.SectionOrder {
		fields := s.sections[name]
		for i := range fields {
			if fields[i].Dirty() {
				out = append(out, DiffEntry{DataType: fields[i].DataType, Value: fields[i].CurrentValue})
				fields[i].OriginalValue = fields[i].CurrentValue
			}
		}
	}
	return out
}

// HasSection reports whether the named section is non-empty. Merged presence
// groups ("pid", "delta") are non-empty when any of their sub-sections is.
func (s *ParameterStore) HasSection(name string) bool {
	if group, ok := models.PresenceGroups[name]; ok {
		for _, sub := range group {
			if len(s.sections[sub]) > 0 {
				return true
			}
		}
		return false
	}
	return len(s.sections[name]) > 0
}

// Fields returns a copy of the named section's fields.
func (s *ParameterStore) Fields(section string) []models.ParameterField {
	fields := s.sections[section]
	if len(fields) == 0 {
		return nil
	}
	out := make([]models.ParameterField, len(fields))
	copy(out, fields)
	return out
}

// AllFields returns every field in stable section order.
func (s *ParameterStore) AllFields() []models.ParameterField {
	var out []models.ParameterField
	for _, name := range models.SectionOrder {
		out = append(out, s.sections[name]...)
	}
	return out
}

// Sections returns all populated sections in stable order.
func (s *ParameterStore) Sections() []SectionData {
	var out []SectionData
	for _, name := range models.SectionOrder {
		if fields := s.Fields(name); fields != nil {
			out = append(out, SectionData{Name: name, Fields: fields})
		}
	}
	return out
}

// FieldCount returns the total number of fields across sections.
func (s *ParameterStore) FieldCount() int {
	n := 0
	for _, fields := range s.sections {
		n += len(fields)
	}
	return n
}
