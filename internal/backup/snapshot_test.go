package backup

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeDump_SplitsGluedResponses(t *testing.T) {
	in := "echo:  M92 X80.00 Y80.00 Z400.00 E500.00echo:  M203 X500.00 Y500.00 Z5.00 E25.00\n"
	got := NormalizeDump(in)

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("NormalizeDump() produced %d lines, want 2: %q", len(lines), got)
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, "echo:") {
			t.Errorf("line %d does not start a response: %q", i, line)
		}
	}
}

func TestNormalizeDump_CollapsesDelimiterArtifact(t *testing.T) {
	in := "echo:  M92 X80.00,\necho:  M203 X500.00\n"
	got := NormalizeDump(in)

	if strings.Contains(got, ",\n") {
		t.Errorf("NormalizeDump() left delimiter artifact in %q", got)
	}
	if !strings.Contains(got, "M92 X80.00\n") {
		t.Errorf("NormalizeDump() mangled the line: %q", got)
	}
}

func TestNormalizeDump_CRLF(t *testing.T) {
	got := NormalizeDump("echo: a\r\necho: b\r\n")
	if strings.Contains(got, "\r") {
		t.Errorf("NormalizeDump() left carriage returns in %q", got)
	}
}

func TestSnapshotFilename(t *testing.T) {
	at := time.Date(2024, 3, 1, 15, 42, 10, 0, time.UTC)
	got := SnapshotFilename(at)
	want := "eeprom_marlin_2024-03-01_154210.cfg"
	if got != want {
		t.Errorf("SnapshotFilename() = %q, want %q", got, want)
	}
}
