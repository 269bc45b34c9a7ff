package models

import "time"

// SnapshotSource records how a snapshot entered the system.
type SnapshotSource string

const (
	SnapshotSourceBackup  SnapshotSource = "backup"
	SnapshotSourceRestore SnapshotSource = "restore"
)

// Snapshot is an archived EEPROM capture: the normalized raw dump text plus the
// parameter table parsed out of it at capture time.
type Snapshot struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	FirmwareIdentity string           `json:"firmwareIdentity"`
	Source           SnapshotSource   `json:"source"`
	RawText          string           `json:"rawText"`
	Fields           []ParameterField `json:"fields"`
	CreatedAt        time.Time        `json:"createdAt"`
}
