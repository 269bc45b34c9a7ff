package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/printhost/marlineeprom/internal/auth"
	"github.com/printhost/marlineeprom/internal/backup"
	"github.com/printhost/marlineeprom/internal/database"
	"github.com/printhost/marlineeprom/internal/eeprom"
	"github.com/printhost/marlineeprom/internal/firmware"
	"github.com/printhost/marlineeprom/internal/logging"
	"github.com/printhost/marlineeprom/internal/models"
	"github.com/printhost/marlineeprom/internal/transport"
)

type Server struct {
	eepromSvc      *eeprom.Service
	queue          *transport.Queue
	backupHandler  *backup.Handler
	snapshotStore  *database.SnapshotStore
	watcher        *firmware.Watcher
	authSvc        *auth.Service
	authMiddleware *auth.Middleware
	logger         *logging.Logger
	server         *http.Server

	mu     sync.Mutex
	latest *models.Snapshot
}

func New(eepromSvc *eeprom.Service, queue *transport.Queue, backupHandler *backup.Handler, snapshotStore *database.SnapshotStore, watcher *firmware.Watcher, authSvc *auth.Service, authMiddleware *auth.Middleware, logger *logging.Logger) *Server {
	return &Server{
		eepromSvc:      eepromSvc,
		queue:          queue,
		backupHandler:  backupHandler,
		snapshotStore:  snapshotStore,
		watcher:        watcher,
		authSvc:        authSvc,
		authMiddleware: authMiddleware,
		logger:         logger,
	}
}

// RecordSnapshot stores the most recent capture snapshot for named-backup
// creation. Wired as part of the service snapshot sink.
func (s *Server) RecordSnapshot(snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &snap
}

func (s *Server) latestSnapshot() *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	// Auth routes
	authAPI := NewAuthAPI(s.authSvc, s.logger)
	authAPI.RegisterRoutes(mux, s.corsMiddleware)

	// EEPROM and printer feed routes
	eepromAPI := NewEEPROMAPI(s.eepromSvc, s.queue, s.authMiddleware, s.logger)
	eepromAPI.RegisterRoutes(mux, s.corsMiddleware)

	// Backup routes
	backupAPI := NewBackupAPI(s.eepromSvc, s.backupHandler, s.snapshotStore, s.latestSnapshot, s.authMiddleware, s.logger)
	backupAPI.RegisterRoutes(mux, s.corsMiddleware)

	// Firmware routes
	mux.HandleFunc("/api/firmware", s.corsMiddleware(s.authMiddleware.RequireAuth(s.handleFirmware)))

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("HTTP API server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleFirmware(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := s.eepromSvc.Firmware()
	response := map[string]interface{}{
		"firmware": info,
		"identity": info.Identity(),
		"known":    info.Known(),
	}

	if s.watcher != nil && info.Known() {
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		status, err := s.watcher.Check(ctx, info.Version)
		if err != nil {
			s.logger.Warn("Failed to check firmware releases", logging.WithField("error", err.Error()))
		} else {
			response["update"] = status
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
