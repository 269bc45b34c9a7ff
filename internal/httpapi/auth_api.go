package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/printhost/marlineeprom/internal/auth"
	"github.com/printhost/marlineeprom/internal/logging"
)

// AuthAPI handles authentication endpoints
type AuthAPI struct {
	authSvc *auth.Service
	logger  *logging.Logger
}

// NewAuthAPI creates a new auth API handler
func NewAuthAPI(authSvc *auth.Service, logger *logging.Logger) *AuthAPI {
	return &AuthAPI{
		authSvc: authSvc,
		logger:  logger,
	}
}

// RegisterRoutes registers auth routes on the given mux
func (api *AuthAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/auth/login", corsMiddleware(api.handleLogin))
}

func (api *AuthAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	tokens, err := api.authSvc.Login(req.Username, req.Password)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			status := http.StatusUnauthorized
			if authErr.Code == "invalid_input" {
				status = http.StatusBadRequest
			}
			api.writeJSON(w, status, map[string]string{"error": authErr.Message})
			return
		}
		api.logger.Error("Login failed", logging.WithField("error", err.Error()))
		api.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Login failed"})
		return
	}

	api.writeJSON(w, http.StatusOK, tokens)
}

func (api *AuthAPI) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
