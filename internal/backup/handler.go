// Package backup holds the named-backup library: snapshots stored as JSON
// files under the data folder, indexed by a metadata file so listing does not
// re-read every backup.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/printhost/marlineeprom/internal/logging"
	"github.com/printhost/marlineeprom/internal/models"
)

const (
	metadataFilename = "backup_metadata.json"
	backupsPath      = "backups"

	// Incremented when the schema has to be changed.
	metadataVersion = 1
	backupVersion   = 1
)

// Entry is one row of the metadata index.
type Entry struct {
	Name string `json:"name"`
	Time string `json:"time"`
}

type metadata struct {
	Version int     `json:"version"`
	Backups []Entry `json:"backups"`
}

// Record is the on-disk backup document.
type Record struct {
	Version int             `json:"version"`
	Name    string          `json:"name"`
	Time    string          `json:"time"`
	Data    models.Snapshot `json:"data"`
}

// Handler owns the backup library for one data folder.
type Handler struct {
	mu      sync.Mutex
	dataDir string
	logger  *logging.Logger
	meta    metadata
}

// NewHandler opens (or initializes) the backup library under dataDir. A
// missing or invalid metadata index is rebuilt by scanning the folder.
func NewHandler(dataDir string, logger *logging.Logger) (*Handler, error) {
	h := &Handler{dataDir: dataDir, logger: logger}

	if err := os.MkdirAll(filepath.Join(dataDir, backupsPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup path: %w", err)
	}

	if err := h.loadMetadata(); err != nil {
		h.logger.Warn("Backup metadata missing or invalid, re-creating", logging.WithField("error", err.Error()))
		if err := h.scan(); err != nil {
			return nil, fmt.Errorf("failed to rebuild backup metadata: %w", err)
		}
	}

	h.logger.Info("Backup metadata initialised", logging.WithField("backups", len(h.meta.Backups)))
	return h, nil
}

func (h *Handler) metadataPath() string {
	return filepath.Join(h.dataDir, metadataFilename)
}

func (h *Handler) backupPath(name string) string {
	return filepath.Join(h.dataDir, backupsPath, name+".json")
}

func (h *Handler) loadMetadata() error {
	data, err := os.ReadFile(h.metadataPath())
	if os.IsNotExist(err) {
		return ErrMetadataMissing
	}
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return ErrMetadataInvalid
	}
	if meta.Version == 0 || meta.Backups == nil {
		return ErrMetadataInvalid
	}

	h.meta = meta
	return nil
}

func (h *Handler) saveMetadata() error {
	data, err := json.Marshal(h.meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(h.metadataPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// scan walks the backup folder one level deep and regenerates the metadata
// index from every readable, valid backup file. Only used when the index is
// lost; it reads every backup to recover its timestamp.
func (h *Handler) scan() error {
	dir := filepath.Join(h.dataDir, backupsPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to scan backup folder: %w", err)
	}

	meta := metadata{Version: metadataVersion, Backups: []Entry{}}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		rec, err := h.readRecord(name)
		if err != nil || !validRecord(rec) {
			h.logger.Warn("Skipping invalid backup file during scan", logging.WithField("file", e.Name()))
			continue
		}
		meta.Backups = append(meta.Backups, Entry{Name: rec.Name, Time: rec.Time})
	}

	h.meta = meta
	return h.saveMetadata()
}

func validRecord(rec Record) bool {
	return rec.Version != 0 && rec.Name != "" && rec.Time != ""
}

// SanitizeName normalizes a user-supplied backup name: unicode NFC, path
// separators and control characters stripped, whitespace collapsed.
func SanitizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == filepath.Separator:
			return '-'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, name)
	name = strings.Join(strings.Fields(name), " ")
	return strings.TrimSpace(name)
}

// List returns the metadata index entries.
func (h *Handler) List() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.meta.Backups))
	copy(out, h.meta.Backups)
	return out
}

// Create stores a new named backup. The name must be unused.
func (h *Handler) Create(name string, snap models.Snapshot) error {
	name = SanitizeName(name)
	if name == "" {
		return ErrInvalidName
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, b := range h.meta.Backups {
		if b.Name == name {
			return fmt.Errorf("%w: %s", ErrNameTaken, name)
		}
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	if !snap.CreatedAt.IsZero() {
		now = snap.CreatedAt.Format("2006-01-02 15:04:05")
	}

	rec := Record{Version: backupVersion, Name: name, Time: now, Data: snap}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := os.WriteFile(h.backupPath(name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	h.meta.Backups = append(h.meta.Backups, Entry{Name: name, Time: now})
	return h.saveMetadata()
}

// Read returns a stored backup. Validation of the snapshot contents is the
// caller's concern; only the envelope is checked here.
func (h *Handler) Read(name string) (Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readRecord(SanitizeName(name))
}

func (h *Handler) readRecord(name string) (Record, error) {
	data, err := os.ReadFile(h.backupPath(name))
	if os.IsNotExist(err) {
		return Record{}, fmt.Errorf("%w: %s", ErrBackupMissing, name)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read backup %s: %w", name, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode backup %s: %w", name, err)
	}
	return rec, nil
}

// Delete removes a stored backup and its index entry.
func (h *Handler) Delete(name string) error {
	name = SanitizeName(name)

	h.mu.Lock()
	defer h.mu.Unlock()

	path := h.backupPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrBackupMissing, name)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete backup %s: %w", name, err)
	}

	kept := h.meta.Backups[:0]
	for _, b := range h.meta.Backups {
		if b.Name != name {
			kept = append(kept, b)
		}
	}
	h.meta.Backups = kept
	return h.saveMetadata()
}

// Validate checks that the named backup file carries a sane envelope.
func (h *Handler) Validate(name string) bool {
	rec, err := h.Read(name)
	return err == nil && validRecord(rec)
}
