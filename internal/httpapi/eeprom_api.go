package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/printhost/marlineeprom/internal/auth"
	"github.com/printhost/marlineeprom/internal/eeprom"
	"github.com/printhost/marlineeprom/internal/logging"
	"github.com/printhost/marlineeprom/internal/transport"
)

// EEPROMAPI handles the parameter table and the printer line feed. Actions
// that drive a controller cycle are rejected with 409 while a previous cycle
// still has controls disabled; the service itself never rejects.
type EEPROMAPI struct {
	svc            *eeprom.Service
	queue          *transport.Queue
	authMiddleware *auth.Middleware
	logger         *logging.Logger
}

// NewEEPROMAPI creates a new EEPROM API handler
func NewEEPROMAPI(svc *eeprom.Service, queue *transport.Queue, authMiddleware *auth.Middleware, logger *logging.Logger) *EEPROMAPI {
	return &EEPROMAPI{
		svc:            svc,
		queue:          queue,
		authMiddleware: authMiddleware,
		logger:         logger,
	}
}

// RegisterRoutes registers EEPROM routes on the given mux
func (api *EEPROMAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/eeprom", corsMiddleware(api.authMiddleware.RequireAuth(api.handleGetTable)))
	mux.HandleFunc("/api/eeprom/load", corsMiddleware(api.authMiddleware.RequireAuth(api.handleLoad)))
	mux.HandleFunc("/api/eeprom/save", corsMiddleware(api.authMiddleware.RequireAuth(api.handleSave)))
	mux.HandleFunc("/api/eeprom/reset", corsMiddleware(api.authMiddleware.RequireAuth(api.handleReset)))
	mux.HandleFunc("/api/eeprom/fields", corsMiddleware(api.authMiddleware.RequireAuth(api.handleFields)))
	mux.HandleFunc("/api/printer/lines", corsMiddleware(api.authMiddleware.RequireAuth(api.handleLines)))
	mux.HandleFunc("/api/printer/commands", corsMiddleware(api.authMiddleware.RequireAuth(api.handleCommands)))
	mux.HandleFunc("/api/printer/disconnect", corsMiddleware(api.authMiddleware.RequireAuth(api.handleDisconnect)))
}

func (api *EEPROMAPI) handleGetTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := api.svc.Firmware()
	api.writeJSON(w, http.StatusOK, map[string]interface{}{
		"firmware":        info,
		"identity":        info.Identity(),
		"sections":        api.svc.Sections(),
		"controlsEnabled": api.svc.ControlsEnabled(),
	})
}

func (api *EEPROMAPI) handleLoad(w http.ResponseWriter, r *http.Request) {
	if !api.requireIdleAction(w, r) {
		return
	}

	api.svc.Load()
	api.writeJSON(w, http.StatusAccepted, map[string]string{"status": "loading"})
}

func (api *EEPROMAPI) handleSave(w http.ResponseWriter, r *http.Request) {
	if !api.requireIdleAction(w, r) {
		return
	}

	count := api.svc.Save()
	api.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "saving",
		"changed": count,
	})
}

func (api *EEPROMAPI) handleReset(w http.ResponseWriter, r *http.Request) {
	if !api.requireIdleAction(w, r) {
		return
	}

	api.svc.ResetDefaults()
	api.writeJSON(w, http.StatusAccepted, map[string]string{"status": "resetting"})
}

func (api *EEPROMAPI) handleFields(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Fields []struct {
			DataType string `json:"dataType"`
			Value    string `json:"value"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if len(req.Fields) == 0 {
		api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "At least one field is required"})
		return
	}

	updated := 0
	for _, f := range req.Fields {
		if api.svc.SetField(f.DataType, f.Value) {
			updated++
		}
	}

	api.writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// handleLines ingests controller response lines forwarded by the serial
// bridge. This is the only inbound path into the session state machine.
func (api *EEPROMAPI) handleLines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Lines []string `json:"lines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	api.svc.HandleLines(req.Lines)
	api.writeJSON(w, http.StatusOK, map[string]int{"received": len(req.Lines)})
}

// handleCommands drains queued outbound commands for the serial bridge.
func (api *EEPROMAPI) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	commands := api.queue.Drain()
	if commands == nil {
		commands = []string{}
	}
	api.writeJSON(w, http.StatusOK, map[string][]string{"commands": commands})
}

func (api *EEPROMAPI) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	api.svc.Disconnect()
	api.writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// requireIdleAction enforces POST plus the controls-enabled gate shared by
// every cycle-starting action.
func (api *EEPROMAPI) requireIdleAction(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if !api.svc.ControlsEnabled() {
		api.writeJSON(w, http.StatusConflict, map[string]string{"error": "Printer is busy with a previous operation"})
		return false
	}
	return true
}

func (api *EEPROMAPI) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
