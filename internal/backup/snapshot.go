package backup

import (
	"regexp"
	"strings"
	"time"
)

// Firmware responses can arrive glued together when the transport coalesces
// writes; every "echo:" response must start its own line in the portable
// artifact. The ",\n" artifact is a known quirk of the dump format.
var echoMidline = regexp.MustCompile(`([^\n])echo:`)

// NormalizeDump normalizes accumulated dump text into the persisted backup
// format: one firmware response per line, delimiter artifacts collapsed.
func NormalizeDump(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = echoMidline.ReplaceAllString(text, "$1\necho:")
	text = strings.ReplaceAll(text, ",\n", "\n")
	return text
}

// SnapshotFilename synthesizes the artifact filename for a capture taken at
// the given time, e.g. "eeprom_marlin_2024-03-01_154210.cfg".
func SnapshotFilename(t time.Time) string {
	return "eeprom_marlin_" + t.Format("2006-01-02_150405") + ".cfg"
}
