package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/printhost/marlineeprom/internal/models"
	"github.com/printhost/marlineeprom/internal/testutil"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := NewHandler(t.TempDir(), testutil.NullLogger())
	if err != nil {
		t.Fatalf("NewHandler() error: %v", err)
	}
	return h
}

func sampleSnapshot() models.Snapshot {
	return models.Snapshot{
		Name:             "sample",
		FirmwareIdentity: "Marlin 2.0.6",
		Source:           models.SnapshotSourceBackup,
		RawText:          "echo:  M92 X80.00 Y80.00 Z400.00 E500.00\nok\n",
		Fields: []models.ParameterField{
			{DataType: "M92 X", OriginalValue: "80.00", CurrentValue: "80.00"},
		},
		CreatedAt: time.Date(2024, 3, 1, 15, 42, 10, 0, time.UTC),
	}
}

func TestCreateAndRead(t *testing.T) {
	h := newTestHandler(t)

	if err := h.Create("ender3", sampleSnapshot()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	rec, err := h.Read("ender3")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if rec.Name != "ender3" {
		t.Errorf("Read().Name = %q, want ender3", rec.Name)
	}
	if rec.Version != backupVersion {
		t.Errorf("Read().Version = %d, want %d", rec.Version, backupVersion)
	}
	if rec.Data.FirmwareIdentity != "Marlin 2.0.6" {
		t.Errorf("Read().Data.FirmwareIdentity = %q", rec.Data.FirmwareIdentity)
	}
	if len(rec.Data.Fields) != 1 {
		t.Errorf("Read().Data.Fields = %d entries, want 1", len(rec.Data.Fields))
	}
}

func TestCreate_NameTaken(t *testing.T) {
	h := newTestHandler(t)

	if err := h.Create("dup", sampleSnapshot()); err != nil {
		t.Fatalf("first Create() error: %v", err)
	}
	err := h.Create("dup", sampleSnapshot())
	if !errors.Is(err, ErrNameTaken) {
		t.Errorf("second Create() error = %v, want ErrNameTaken", err)
	}
}

func TestCreate_InvalidName(t *testing.T) {
	h := newTestHandler(t)
	if err := h.Create("   ", sampleSnapshot()); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Create(blank) error = %v, want ErrInvalidName", err)
	}
}

func TestRead_Missing(t *testing.T) {
	h := newTestHandler(t)
	if _, err := h.Read("nope"); !errors.Is(err, ErrBackupMissing) {
		t.Errorf("Read(missing) error = %v, want ErrBackupMissing", err)
	}
}

func TestDelete(t *testing.T) {
	h := newTestHandler(t)

	if err := h.Create("gone", sampleSnapshot()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := h.Delete("gone"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := h.Read("gone"); !errors.Is(err, ErrBackupMissing) {
		t.Error("Read() after Delete() should report missing")
	}
	if len(h.List()) != 0 {
		t.Errorf("List() after Delete() = %d entries, want 0", len(h.List()))
	}

	if err := h.Delete("gone"); !errors.Is(err, ErrBackupMissing) {
		t.Errorf("Delete(missing) error = %v, want ErrBackupMissing", err)
	}
}

func TestList(t *testing.T) {
	h := newTestHandler(t)

	for _, name := range []string{"a", "b"} {
		if err := h.Create(name, sampleSnapshot()); err != nil {
			t.Fatalf("Create(%s) error: %v", name, err)
		}
	}

	list := h.List()
	if len(list) != 2 {
		t.Fatalf("List() = %d entries, want 2", len(list))
	}
	if list[0].Name != "a" || list[1].Name != "b" {
		t.Errorf("List() order = %v, want [a b]", list)
	}
	if list[0].Time == "" {
		t.Error("List() entry missing timestamp")
	}
}

func TestScanRebuildsLostMetadata(t *testing.T) {
	dir := t.TempDir()
	logger := testutil.NullLogger()

	h, err := NewHandler(dir, logger)
	if err != nil {
		t.Fatalf("NewHandler() error: %v", err)
	}
	if err := h.Create("survivor", sampleSnapshot()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Lose the index; a fresh handler must recover it from the folder.
	if err := os.Remove(filepath.Join(dir, metadataFilename)); err != nil {
		t.Fatalf("failed to remove metadata: %v", err)
	}

	h2, err := NewHandler(dir, logger)
	if err != nil {
		t.Fatalf("NewHandler() after metadata loss error: %v", err)
	}

	list := h2.List()
	if len(list) != 1 || list[0].Name != "survivor" {
		t.Errorf("rebuilt List() = %v, want [survivor]", list)
	}
}

func TestScanSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	logger := testutil.NullLogger()

	h, err := NewHandler(dir, logger)
	if err != nil {
		t.Fatalf("NewHandler() error: %v", err)
	}
	if err := h.Create("good", sampleSnapshot()); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	corrupt := filepath.Join(dir, backupsPath, "bad.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to plant corrupt file: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, metadataFilename)); err != nil {
		t.Fatalf("failed to remove metadata: %v", err)
	}

	h2, err := NewHandler(dir, logger)
	if err != nil {
		t.Fatalf("NewHandler() error: %v", err)
	}
	list := h2.List()
	if len(list) != 1 || list[0].Name != "good" {
		t.Errorf("rebuilt List() = %v, want [good]", list)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"  spaced   name  ", "spaced name"},
		{"../escape", "..-escape"},
		{"tab\tand\ncontrol", "tabandcontrol"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
