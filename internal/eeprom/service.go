package eeprom

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/printhost/marlineeprom/internal/backup"
	"github.com/printhost/marlineeprom/internal/logging"
	"github.com/printhost/marlineeprom/internal/marlin"
	"github.com/printhost/marlineeprom/internal/models"
)

// Firmware command catalog. Each outbound command is an opaque string on the
// fire-and-forget command channel.
const (
	cmdDump      = "M503"
	cmdReset     = "M502"
	cmdCommit    = "M500"
	cmdRecompute = "M501"
	cmdIdentify  = "M115"
)

// DefaultAckDelay is how long after an acknowledgement (or backup completion)
// the controls re-enable, modeling the firmware's asynchronous "ok" handshake.
const DefaultAckDelay = 2 * time.Second

var (
	// The designated backup start marker: the echo of the dump request.
	// Lines before it are not accumulated (they still run through the
	// extractor; extraction and accumulation are independent).
	startMarkerPattern = regexp.MustCompile(`\bM503\b`)

	// The probe-offset report is the last family of the dump and doubles
	// as the explicit end marker.
	endMarkerPattern = regexp.MustCompile(`\bM851\b`)
)

// CommandSender is the external command channel toward the controller.
type CommandSender interface {
	SendCommand(cmd string)
}

// Artifact is a completed backup snapshot ready to hand to the user: the
// normalized dump text plus a timestamped filename.
type Artifact struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// SnapshotSink receives completed capture (and restore import) snapshots for
// archival. Invoked outside the service lock.
type SnapshotSink func(snapshot models.Snapshot, artifact Artifact)

// BackupStatus describes the capture session for status reads.
type BackupStatus struct {
	Active        bool `json:"active"`
	SawStartMark  bool `json:"sawStartMarker"`
	CapturedBytes int  `json:"capturedBytes"`
}

type backupSession struct {
	sawStart bool
	buf      strings.Builder
}

// Service drives the load / save / backup / restore cycles against the
// controller. It reacts to two event sources: the inbound line feed
// (HandleLine) and discrete user actions. The controls-disabled flag is the
// sole mutual-exclusion mechanism; callers at the UI boundary must reject
// actions while controls are disabled; the service itself neither queues
// nor rejects them.
type Service struct {
	mu     sync.Mutex
	sender CommandSender
	logger *logging.Logger

	store     *ParameterStore
	extractor *marlin.Extractor
	grammar   *marlin.Grammar
	firmware  models.FirmwareInfo

	controlsDisabled bool
	generation       uint64
	ackTimer         *time.Timer
	ackDelay         time.Duration

	clearOriginal bool
	backup        *backupSession
	lastArtifact  *Artifact

	sink SnapshotSink
}

// Option configures a Service.
type Option func(*Service)

// WithAckDelay overrides the acknowledgement re-enable delay (tests).
func WithAckDelay(d time.Duration) Option {
	return func(s *Service) { s.ackDelay = d }
}

// WithSnapshotSink registers the archival sink for completed snapshots.
func WithSnapshotSink(sink SnapshotSink) Option {
	return func(s *Service) { s.sink = sink }
}

// NewService creates the EEPROM session service.
func NewService(sender CommandSender, logger *logging.Logger, opts ...Option) *Service {
	s := &Service{
		sender:    sender,
		logger:    logger,
		store:     NewParameterStore(),
		extractor: marlin.NewExtractor(),
		grammar:   marlin.Resolve(""),
		ackDelay:  DefaultAckDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleLine processes one inbound controller response line.
func (s *Service) HandleLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleLineLocked(line)
}

// HandleLines processes an ordered batch of inbound lines.
func (s *Service) HandleLines(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range lines {
		s.handleLineLocked(line)
	}
}

func (s *Service) handleLineLocked(line string) {
	// Identity is immutable once set for the connection session.
	if info, ok := marlin.ParseIdentity(line); ok && !s.firmware.Known() {
		s.firmware.Vendor = info.Vendor
		s.firmware.Version = info.Version
		s.grammar = marlin.Resolve(s.firmware.Identity())
		s.logger.Info("Firmware identified", logging.WithFields(map[string]interface{}{
			"identity": s.firmware.Identity(),
			"grammar":  s.grammar.Name,
		}))
	}

	if name, enabled, ok := marlin.ParseCapability(line); ok {
		if s.firmware.Capabilities == nil {
			s.firmware.Capabilities = make(map[string]bool)
		}
		s.firmware.Capabilities[name] = enabled
	}

	for _, x := range s.extractor.Extract(line, s.grammar, s.clearOriginal) {
		s.store.Ingest(x.Section, x.Field)
	}

	if s.backup != nil {
		s.accumulateLocked(line)
	}

	if marlin.IsAcknowledgement(line) {
		s.scheduleEnableLocked()
	}
}

// accumulateLocked appends dump lines to the capture buffer once the start
// marker has been seen, and finishes the session on the terminal condition.
func (s *Service) accumulateLocked(line string) {
	if !s.backup.sawStart {
		if startMarkerPattern.MatchString(line) {
			s.backup.sawStart = true
		}
		return
	}

	s.backup.buf.WriteString(line)
	s.backup.buf.WriteByte('\n')

	if endMarkerPattern.MatchString(line) || marlin.IsAcknowledgement(line) {
		s.finishBackupLocked()
	}
}

func (s *Service) finishBackupLocked() {
	raw := s.backup.buf.String()
	s.backup = nil

	artifact := Artifact{
		Filename: backup.SnapshotFilename(time.Now()),
		Text:     backup.NormalizeDump(raw),
	}
	s.lastArtifact = &artifact

	snapshot := models.Snapshot{
		Name:             artifact.Filename,
		FirmwareIdentity: s.firmware.Identity(),
		Source:           models.SnapshotSourceBackup,
		RawText:          artifact.Text,
		Fields:           s.store.AllFields(),
		CreatedAt:        time.Now(),
	}

	s.logger.Info("Backup capture complete", logging.WithFields(map[string]interface{}{
		"filename": artifact.Filename,
		"fields":   len(snapshot.Fields),
	}))

	if s.sink != nil {
		go s.sink(snapshot, artifact)
	}

	s.scheduleEnableLocked()
}

// beginCycleLocked starts a fresh cycle: controls off, store and extractor
// reset, any pending re-enable timer invalidated so it cannot resurrect a
// previous cycle's state.
func (s *Service) beginCycleLocked(clearOriginal bool) {
	s.controlsDisabled = true
	s.generation++
	if s.ackTimer != nil {
		s.ackTimer.Stop()
		s.ackTimer = nil
	}
	s.store.Reset()
	s.extractor.Reset()
	s.clearOriginal = clearOriginal
	s.backup = nil
	s.lastArtifact = nil
}

// scheduleEnableLocked arms the re-enable timer for the current cycle.
func (s *Service) scheduleEnableLocked() {
	gen := s.generation
	if s.ackTimer != nil {
		s.ackTimer.Stop()
	}
	s.ackTimer = time.AfterFunc(s.ackDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation == gen {
			s.controlsDisabled = false
		}
	})
}

// Load starts a load cycle: reset state and request a fresh parameter dump.
func (s *Service) Load() {
	s.mu.Lock()
	s.beginCycleLocked(false)
	identify := !s.firmware.Known()
	s.mu.Unlock()

	s.logger.Info("Starting EEPROM load cycle")
	if identify {
		s.sender.SendCommand(cmdIdentify)
	}
	s.sender.SendCommand(cmdDump)
}

// Save emits one persistence command per dirty field, commits to storage,
// recomputes derived state and triggers a fresh load cycle. The per-field
// command is the field's dataType concatenated with its value, no separator.
func (s *Service) Save() int {
	s.mu.Lock()
	s.controlsDisabled = true
	diff := s.store.Diff()
	s.mu.Unlock()

	for _, entry := range diff {
		s.sender.SendCommand(entry.DataType + entry.Value)
	}
	s.sender.SendCommand(cmdCommit)
	s.sender.SendCommand(cmdRecompute)

	s.logger.Info("Saved EEPROM changes", logging.WithField("changed", len(diff)))

	s.Load()
	return len(diff)
}

// ResetDefaults restores firmware defaults and reloads.
func (s *Service) ResetDefaults() {
	s.mu.Lock()
	s.controlsDisabled = true
	s.mu.Unlock()

	s.logger.Info("Resetting EEPROM to firmware defaults")
	s.sender.SendCommand(cmdReset)
	s.Load()
}

// StartBackup begins a capture session against the live stream. The session
// accumulates dump lines after the start marker and finishes on the terminal
// condition; a firmware that never replies leaves the session capturing and
// controls disabled indefinitely.
func (s *Service) StartBackup() {
	s.mu.Lock()
	s.beginCycleLocked(false)
	s.backup = &backupSession{}
	s.mu.Unlock()

	s.logger.Info("Starting EEPROM backup capture")
	s.sender.SendCommand(cmdDump)
}

// Restore replays a previously captured text blob through the extractor into
// a fresh store, synchronously. Imported values are marked pending (empty
// original), so every field reads as unsaved until the next save. Controls
// re-enable only if the blob carries an acknowledgement line; otherwise
// re-enabling is the caller's responsibility. The imported snapshot is handed
// to the archival sink like a completed capture.
func (s *Service) Restore(blob string) int {
	s.mu.Lock()

	s.beginCycleLocked(true)
	s.logger.Info("Restoring EEPROM snapshot from text blob")

	for _, line := range strings.Split(blob, "\n") {
		s.handleLineLocked(line)
	}

	count := s.store.FieldCount()
	artifact := Artifact{
		Filename: backup.SnapshotFilename(time.Now()),
		Text:     backup.NormalizeDump(blob),
	}
	snapshot := models.Snapshot{
		Name:             artifact.Filename,
		FirmwareIdentity: s.firmware.Identity(),
		Source:           models.SnapshotSourceRestore,
		RawText:          artifact.Text,
		Fields:           s.store.AllFields(),
		CreatedAt:        time.Now(),
	}
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		go sink(snapshot, artifact)
	}

	s.logger.Info("Restore replay finished", logging.WithField("fields", count))
	return count
}

// Disconnect clears the firmware identity; the next session re-identifies.
func (s *Service) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firmware = models.FirmwareInfo{}
	s.grammar = marlin.Resolve("")
	s.logger.Info("Controller disconnected, firmware identity cleared")
}

// ControlsEnabled reports whether user actions may currently be accepted.
func (s *Service) ControlsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.controlsDisabled
}

// Firmware returns the identified firmware info for this session.
func (s *Service) Firmware() models.FirmwareInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.firmware
	if s.firmware.Capabilities != nil {
		info.Capabilities = make(map[string]bool, len(s.firmware.Capabilities))
		for k, v := range s.firmware.Capabilities {
			info.Capabilities[k] = v
		}
	}
	return info
}

// Sections returns the current parameter table.
func (s *Service) Sections() []SectionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Sections()
}

// HasSection reports section (or merged group) presence.
func (s *Service) HasSection(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.HasSection(name)
}

// SetField edits the current value of the field with the given dataType.
func (s *Service) SetField(dataType, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SetCurrent(dataType, value)
}

// BackupState describes the capture session.
func (s *Service) BackupState() BackupStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backup == nil {
		return BackupStatus{}
	}
	return BackupStatus{
		Active:        true,
		SawStartMark:  s.backup.sawStart,
		CapturedBytes: s.backup.buf.Len(),
	}
}

// LastArtifact returns the most recent completed backup artifact, if any.
func (s *Service) LastArtifact() (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastArtifact == nil {
		return Artifact{}, false
	}
	return *s.lastArtifact, true
}
