package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/printhost/marlineeprom/internal/auth"
	"github.com/printhost/marlineeprom/internal/backup"
	"github.com/printhost/marlineeprom/internal/database"
	"github.com/printhost/marlineeprom/internal/eeprom"
	"github.com/printhost/marlineeprom/internal/logging"
	"github.com/printhost/marlineeprom/internal/models"
)

// BackupAPI handles backup capture, named backup storage and restore.
type BackupAPI struct {
	svc            *eeprom.Service
	handler        *backup.Handler
	snapshotStore  *database.SnapshotStore
	latestSnapshot func() *models.Snapshot
	authMiddleware *auth.Middleware
	logger         *logging.Logger
}

// NewBackupAPI creates a new backup API handler
func NewBackupAPI(svc *eeprom.Service, handler *backup.Handler, snapshotStore *database.SnapshotStore, latestSnapshot func() *models.Snapshot, authMiddleware *auth.Middleware, logger *logging.Logger) *BackupAPI {
	return &BackupAPI{
		svc:            svc,
		handler:        handler,
		snapshotStore:  snapshotStore,
		latestSnapshot: latestSnapshot,
		authMiddleware: authMiddleware,
		logger:         logger,
	}
}

// RegisterRoutes registers backup routes on the given mux
func (api *BackupAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/backup", corsMiddleware(api.authMiddleware.RequireAuth(api.handleBackup)))
	mux.HandleFunc("/api/backup/current", corsMiddleware(api.authMiddleware.RequireAuth(api.handleCurrent)))
	mux.HandleFunc("/api/backups", corsMiddleware(api.authMiddleware.RequireAuth(api.handleBackups)))
	mux.HandleFunc("/api/backups/", corsMiddleware(api.authMiddleware.RequireAuth(api.handleBackupItem)))
	mux.HandleFunc("/api/restore", corsMiddleware(api.authMiddleware.RequireAuth(api.handleRestoreBlob)))
	mux.HandleFunc("/api/snapshots", corsMiddleware(api.authMiddleware.RequireAuth(api.handleSnapshots)))
}

// handleRestoreBlob replays an uploaded dump text directly, without a stored
// backup.
func (api *BackupAPI) handleRestoreBlob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !api.svc.ControlsEnabled() {
		api.writeJSON(w, http.StatusConflict, map[string]string{"error": "Printer is busy with a previous operation"})
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Text == "" {
		api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Restore text is required"})
		return
	}

	count := api.svc.Restore(req.Text)

	api.logger.Info("Restored uploaded dump", logging.WithField("fields", count))
	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "restored",
		"fields": count,
	})
}

// handleBackup starts a capture (POST) or reports session status (GET).
func (api *BackupAPI) handleBackup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !api.svc.ControlsEnabled() {
			api.writeJSON(w, http.StatusConflict, map[string]string{"error": "Printer is busy with a previous operation"})
			return
		}
		api.svc.StartBackup()
		api.writeJSON(w, http.StatusAccepted, map[string]string{"status": "capturing"})
	case http.MethodGet:
		api.writeJSON(w, http.StatusOK, api.svc.BackupState())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCurrent returns the most recent completed capture artifact.
func (api *BackupAPI) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	artifact, ok := api.svc.LastArtifact()
	if !ok {
		api.writeJSON(w, http.StatusNotFound, map[string]string{"error": "No completed backup available"})
		return
	}
	api.writeJSON(w, http.StatusOK, artifact)
}

// handleBackups handles list and create for named backups.
func (api *BackupAPI) handleBackups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries := api.handler.List()
		api.writeJSON(w, http.StatusOK, map[string]interface{}{
			"backups": entries,
			"count":   len(entries),
		})
	case http.MethodPost:
		api.createBackup(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (api *BackupAPI) createBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	snap := api.latestSnapshot()
	if snap == nil {
		api.writeJSON(w, http.StatusConflict, map[string]string{"error": "No completed backup to store; run a capture first"})
		return
	}

	name := backup.SanitizeName(req.Name)
	named := *snap
	named.Name = name

	if err := api.handler.Create(name, named); err != nil {
		switch {
		case errors.Is(err, backup.ErrInvalidName):
			api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid backup name"})
		case errors.Is(err, backup.ErrNameTaken):
			api.writeJSON(w, http.StatusConflict, map[string]string{"error": "A backup with this name already exists"})
		default:
			api.logger.Error("Failed to create backup", logging.WithField("error", err.Error()))
			api.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create backup"})
		}
		return
	}

	api.writeJSON(w, http.StatusCreated, map[string]string{"name": name})
}

// handleBackupItem handles get, delete and restore for a single named backup.
func (api *BackupAPI) handleBackupItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/backups/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Backup name required", http.StatusBadRequest)
		return
	}

	name := parts[0]

	if len(parts) >= 2 && parts[1] == "restore" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		api.restoreBackup(w, r, name)
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := api.handler.Read(name)
		if err != nil {
			api.writeBackupError(w, err)
			return
		}
		api.writeJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		if err := api.handler.Delete(name); err != nil {
			api.writeBackupError(w, err)
			return
		}
		api.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (api *BackupAPI) restoreBackup(w http.ResponseWriter, r *http.Request, name string) {
	if !api.svc.ControlsEnabled() {
		api.writeJSON(w, http.StatusConflict, map[string]string{"error": "Printer is busy with a previous operation"})
		return
	}

	record, err := api.handler.Read(name)
	if err != nil {
		api.writeBackupError(w, err)
		return
	}

	count := api.svc.Restore(record.Data.RawText)

	api.logger.Info("Restored backup", logging.WithFields(map[string]interface{}{
		"name":   name,
		"fields": count,
	}))

	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "restored",
		"fields":   count,
		"name":     name,
		"identity": record.Data.FirmwareIdentity,
	})
}

// handleSnapshots lists archived snapshots from the database, when one is
// configured.
func (api *BackupAPI) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if api.snapshotStore == nil {
		api.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Snapshot archive is not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	snaps, err := api.snapshotStore.List(ctx, 50)
	if err != nil {
		api.logger.Error("Failed to list snapshots", logging.WithField("error", err.Error()))
		api.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list snapshots"})
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

func (api *BackupAPI) writeBackupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backup.ErrBackupMissing):
		api.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Backup not found"})
	case errors.Is(err, backup.ErrInvalidName):
		api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid backup name"})
	default:
		api.logger.Error("Backup operation failed", logging.WithField("error", err.Error()))
		api.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Backup operation failed"})
	}
}

func (api *BackupAPI) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
