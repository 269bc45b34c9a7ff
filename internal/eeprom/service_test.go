package eeprom

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/printhost/marlineeprom/internal/models"
	"github.com/printhost/marlineeprom/internal/testutil"
)

type fakeSender struct {
	mu   sync.Mutex
	cmds []string
}

func (f *fakeSender) SendCommand(cmd string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
}

func (f *fakeSender) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.cmds))
	copy(out, f.cmds)
	return out
}

const testAckDelay = 20 * time.Millisecond

func newTestService(opts ...Option) (*Service, *fakeSender) {
	sender := &fakeSender{}
	opts = append([]Option{WithAckDelay(testAckDelay)}, opts...)
	return NewService(sender, testutil.NullLogger(), opts...), sender
}

func waitForAck() {
	time.Sleep(5 * testAckDelay)
}

func TestLoad_RequestsIdentityAndDump(t *testing.T) {
	svc, sender := newTestService()

	svc.Load()

	if svc.ControlsEnabled() {
		t.Error("controls should be disabled during a load cycle")
	}

	cmds := sender.commands()
	if len(cmds) != 2 || cmds[0] != "M115" || cmds[1] != "M503" {
		t.Errorf("Load() sent %v, want [M115 M503]", cmds)
	}
}

func TestLoad_SkipsIdentifyWhenKnown(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleLine("FIRMWARE_NAME:Marlin 2.0.6 SOURCE_CODE_URL:https://example.invalid")

	svc.Load()

	cmds := sender.commands()
	if len(cmds) != 1 || cmds[0] != "M503" {
		t.Errorf("Load() sent %v, want [M503]", cmds)
	}
}

func TestLoadCycle_PopulatesStoreAndReenables(t *testing.T) {
	svc, _ := newTestService()

	svc.Load()
	svc.HandleLines([]string{
		"FIRMWARE_NAME:Marlin 2.0.6 SOURCE_CODE_URL:https://example.invalid",
		"Cap:EEPROM:1",
		"echo:  M92 X80.00 Y80.00 Z400.00 E93.00",
		"echo:  M301 P21.73 I1.54 D76.55",
		"ok",
	})

	if !svc.HasSection(models.SectionSteps) {
		t.Error("steps section should be populated after the dump")
	}
	if !svc.HasSection("pid") {
		t.Error("merged pid group should be present with hotend PID data")
	}
	if !svc.Firmware().HasCapability("EEPROM") {
		t.Error("EEPROM capability should be recorded")
	}

	if svc.ControlsEnabled() {
		t.Error("controls should stay disabled until the ack delay elapses")
	}
	waitForAck()
	if !svc.ControlsEnabled() {
		t.Error("controls should re-enable after the acknowledgement delay")
	}
}

func TestSave_EmitsDiffCommitRecomputeReload(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleLine("FIRMWARE_NAME:Marlin 2.0.6 SOURCE_CODE_URL:x")
	svc.Load()
	svc.HandleLine("echo:  M92 X80.00 Y80.00 Z400.00 E93.00")

	if !svc.SetField("M92 X", "81.00") {
		t.Fatal("SetField() did not find M92 X")
	}

	sender.mu.Lock()
	sender.cmds = nil
	sender.mu.Unlock()

	if n := svc.Save(); n != 1 {
		t.Errorf("Save() = %d changed fields, want 1", n)
	}

	want := []string{"M92 X81.00", "M500", "M501", "M503"}
	cmds := sender.commands()
	if len(cmds) != len(want) {
		t.Fatalf("Save() sent %v, want %v", cmds, want)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, cmds[i], want[i])
		}
	}

	if svc.ControlsEnabled() {
		t.Error("controls should be disabled through save and reload")
	}
}

func TestResetDefaults_SendsResetAndReloads(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleLine("FIRMWARE_NAME:Marlin 2.0.6 SOURCE_CODE_URL:x")
	svc.ResetDefaults()

	cmds := sender.commands()
	if len(cmds) != 2 || cmds[0] != "M502" || cmds[1] != "M503" {
		t.Errorf("ResetDefaults() sent %v, want [M502 M503]", cmds)
	}
}

func TestBackup_CapturesAfterStartMarker(t *testing.T) {
	done := make(chan Artifact, 1)
	svc, _ := newTestService(WithSnapshotSink(func(_ models.Snapshot, a Artifact) {
		done <- a
	}))

	svc.StartBackup()
	svc.HandleLines([]string{
		"echo:  M92 X80.00 Y80.00 Z400.00 E93.00", // before marker: extracted, not accumulated
		"echo:M503",
		"echo:  M203 X500.00 Y500.00 Z5.00 E25.00",
		"ok",
	})

	var artifact Artifact
	select {
	case artifact = <-done:
	case <-time.After(time.Second):
		t.Fatal("backup session did not complete")
	}

	if !strings.Contains(artifact.Text, "M203") {
		t.Errorf("artifact should contain post-marker dump lines: %q", artifact.Text)
	}
	if strings.Contains(artifact.Text, "M92") {
		t.Errorf("artifact should not contain pre-marker lines: %q", artifact.Text)
	}
	if !strings.HasPrefix(artifact.Filename, "eeprom_marlin_") || !strings.HasSuffix(artifact.Filename, ".cfg") {
		t.Errorf("unexpected artifact filename %q", artifact.Filename)
	}

	// Extraction is independent of accumulation: the pre-marker line still
	// landed in the store.
	if !svc.HasSection(models.SectionSteps) {
		t.Error("pre-marker line should still have been extracted")
	}

	waitForAck()
	if !svc.ControlsEnabled() {
		t.Error("controls should re-enable after backup completion")
	}
}

func TestBackup_RoundTrip(t *testing.T) {
	snapshots := make(chan models.Snapshot, 1)
	svc, _ := newTestService(WithSnapshotSink(func(s models.Snapshot, _ Artifact) {
		snapshots <- s
	}))

	svc.HandleLine("FIRMWARE_NAME:Marlin 2.0.6 SOURCE_CODE_URL:x")
	svc.StartBackup()
	svc.HandleLines([]string{
		"echo:M503",
		"echo:  M92 X80.00 Y80.00 Z400.00 E93.00",
		"echo:  M301 P21.73 I1.54 D76.55",
		"ok",
	})

	var snap models.Snapshot
	select {
	case snap = <-snapshots:
	case <-time.After(time.Second):
		t.Fatal("backup session did not complete")
	}

	before := snap.Fields
	if len(before) == 0 {
		t.Fatal("snapshot carries no fields")
	}

	// Replay into a fresh service.
	restored, _ := newTestService()
	restored.Restore(snap.RawText)

	after := restored.Sections()
	var afterFields []models.ParameterField
	for _, sec := range after {
		afterFields = append(afterFields, sec.Fields...)
	}

	if len(afterFields) != len(before) {
		t.Fatalf("restore produced %d fields, want %d", len(afterFields), len(before))
	}
	for i := range before {
		if afterFields[i].DataType != before[i].DataType {
			t.Errorf("field %d: DataType = %q, want %q", i, afterFields[i].DataType, before[i].DataType)
		}
		if afterFields[i].CurrentValue != before[i].CurrentValue {
			t.Errorf("field %d: CurrentValue = %q, want %q", i, afterFields[i].CurrentValue, before[i].CurrentValue)
		}
		if afterFields[i].OriginalValue != "" {
			t.Errorf("field %d: OriginalValue = %q, want empty after restore", i, afterFields[i].OriginalValue)
		}
	}
}

func TestBackup_StallsWithoutTerminalCondition(t *testing.T) {
	svc, _ := newTestService()

	svc.StartBackup()
	svc.HandleLines([]string{
		"echo:M503",
		"echo:  M92 X80.00 Y80.00 Z400.00 E93.00",
		// Firmware goes silent: no end marker, no ack.
	})

	waitForAck()
	if svc.ControlsEnabled() {
		t.Error("a stalled backup session must leave controls disabled")
	}
	status := svc.BackupState()
	if !status.Active || !status.SawStartMark {
		t.Errorf("BackupState() = %+v, want active capture past the marker", status)
	}
}

func TestRestore_ArchivesImportSnapshot(t *testing.T) {
	snapshots := make(chan models.Snapshot, 1)
	svc, _ := newTestService(WithSnapshotSink(func(s models.Snapshot, _ Artifact) {
		snapshots <- s
	}))

	svc.HandleLine("FIRMWARE_NAME:Marlin 2.0.6 SOURCE_CODE_URL:x")
	n := svc.Restore("echo:  M92 X80.00 Y80.00 Z400.00 E93.00\nok\n")
	if n != 4 {
		t.Fatalf("Restore() = %d fields, want 4", n)
	}

	var snap models.Snapshot
	select {
	case snap = <-snapshots:
	case <-time.After(time.Second):
		t.Fatal("restore import was never handed to the snapshot sink")
	}

	if snap.Source != models.SnapshotSourceRestore {
		t.Errorf("Source = %q, want %q", snap.Source, models.SnapshotSourceRestore)
	}
	if snap.FirmwareIdentity != "Marlin 2.0.6" {
		t.Errorf("FirmwareIdentity = %q, want %q", snap.FirmwareIdentity, "Marlin 2.0.6")
	}
	if len(snap.Fields) != 4 {
		t.Errorf("snapshot carries %d fields, want 4", len(snap.Fields))
	}
	if snap.Name == "" || snap.RawText == "" {
		t.Errorf("snapshot missing name or text: %+v", snap)
	}
}

func TestRestore_NoAutoReenableWithoutAck(t *testing.T) {
	svc, _ := newTestService()

	n := svc.Restore("echo:  M92 X80.00 Y80.00 Z400.00 E93.00\n")
	if n != 4 {
		t.Errorf("Restore() = %d fields, want 4", n)
	}

	waitForAck()
	if svc.ControlsEnabled() {
		t.Error("restore without an ack line must not re-enable controls")
	}
}

func TestRestore_ReenablesWhenBlobCarriesAck(t *testing.T) {
	svc, _ := newTestService()

	svc.Restore("echo:  M92 X80.00 Y80.00 Z400.00 E93.00\nok\n")

	waitForAck()
	if !svc.ControlsEnabled() {
		t.Error("restore blob with an ack line should re-enable controls")
	}
}

func TestScheduledEnable_InvalidatedByNewCycle(t *testing.T) {
	svc, _ := newTestService()

	svc.Load()
	svc.HandleLine("ok")

	// A new cycle starts before the timer fires; the stale timer must not
	// resurrect the enabled state.
	svc.StartBackup()

	waitForAck()
	if svc.ControlsEnabled() {
		t.Error("stale acknowledgement timer re-enabled controls for a new cycle")
	}
}

func TestDisconnect_ClearsIdentity(t *testing.T) {
	svc, _ := newTestService()
	svc.HandleLine("FIRMWARE_NAME:Marlin 1.0.2 SOURCE_CODE_URL:x")

	if !svc.Firmware().Known() {
		t.Fatal("identity should be set")
	}

	svc.Disconnect()
	if svc.Firmware().Known() {
		t.Error("identity should be cleared on disconnect")
	}

	// A new session may identify as a different firmware.
	svc.HandleLine("FIRMWARE_NAME:Marlin bugfix-2.0.x SOURCE_CODE_URL:x")
	if got := svc.Firmware().Identity(); got != "Marlin bugfix-2.0.x" {
		t.Errorf("Identity() = %q after reconnect, want bugfix identity", got)
	}
}
