package marlin

import (
	"regexp"
	"strings"

	"github.com/printhost/marlineeprom/internal/models"
)

// Firmware identification arrives on its own response lines, independent of
// the configuration dump:
//
//	FIRMWARE_NAME:Marlin bugfix-2.0.x SOURCE_CODE_URL:https://...
//	Cap:EEPROM:1
var (
	identityPattern   = regexp.MustCompile(`FIRMWARE_NAME:(\S+)\s+(\S+)`)
	capabilityPattern = regexp.MustCompile(`Cap:([A-Z0-9_]+)(?::([01]))?`)
)

// ParseIdentity extracts the firmware vendor and version from an
// identification line. Returns false when the line is not an identity line.
func ParseIdentity(line string) (models.FirmwareInfo, bool) {
	m := identityPattern.FindStringSubmatch(line)
	if m == nil {
		return models.FirmwareInfo{}, false
	}
	return models.FirmwareInfo{Vendor: m[1], Version: m[2]}, true
}

// ParseCapability extracts a capability token from a "Cap:" line. The enabled
// flag defaults to true when the firmware omits the trailing :0/:1.
func ParseCapability(line string) (name string, enabled bool, ok bool) {
	m := capabilityPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false, false
	}
	name = strings.ToUpper(m[1])
	enabled = m[2] != "0"
	return name, enabled, true
}

var ackPattern = regexp.MustCompile(`^\s*ok\b`)

// IsAcknowledgement reports whether the line is the firmware's generic "ok"
// handshake. Recognized independently of any command-family match.
func IsAcknowledgement(line string) bool {
	return ackPattern.MatchString(line)
}
