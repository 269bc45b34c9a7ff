package models

import "strings"

// FirmwareInfo describes the controller software identified on the current
// connection session. Identity is immutable once set; a disconnect clears it.
type FirmwareInfo struct {
	Vendor       string          `json:"vendor"`
	Version      string          `json:"version"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}

// Identity returns the normalized "vendor version" string used to key grammar
// resolution, e.g. "Marlin bugfix-2.0.x".
func (f FirmwareInfo) Identity() string {
	if f.Vendor == "" {
		return ""
	}
	if f.Version == "" {
		return f.Vendor
	}
	return f.Vendor + " " + f.Version
}

// Known reports whether an identity line has been seen this session.
func (f FirmwareInfo) Known() bool {
	return f.Vendor != ""
}

// HasCapability reports a firmware-advertised capability such as "EEPROM".
func (f FirmwareInfo) HasCapability(name string) bool {
	return f.Capabilities[strings.ToUpper(name)]
}
