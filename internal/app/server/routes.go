package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"krampus/internal/app/version"
	"krampus/internal/auth"
	"krampus/internal/database"
	"krampus/internal/governance"
)

// engine is set once by OpenRoutes before the listener starts, mirroring
// how the store exposes its handle.
var engine *governance.Engine

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the governance error taxonomy onto HTTP statuses. A
// duplicate submission ships the existing proposal so clients can offer a
// vote on it instead.
func writeEngineError(w http.ResponseWriter, err error) {
	var dup *governance.AlreadyProposedError
	if errors.As(err, &dup) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":             err.Error(),
			"existing_proposal": dup.Existing,
		})
		return
	}

	switch {
	case errors.Is(err, governance.ErrInvalidIdentifier),
		errors.Is(err, governance.ErrInvalidPolicy):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, governance.ErrProposalNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, governance.ErrUnauthorized):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, governance.ErrAlreadyRuled),
		errors.Is(err, governance.ErrAlreadyProposed),
		errors.Is(err, governance.ErrProposalNotVotable),
		errors.Is(err, governance.ErrInvalidTransition),
		errors.Is(err, database.ErrDuplicateProposal),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrForeignKeyViolated):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, governance.ErrStoreUnavailable):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Error("Unhandled engine error", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow any origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass the request to the next handler
		next.ServeHTTP(w, r)
	})
}

func buildRouter() *http.ServeMux {
	router := http.NewServeMux()

	router.HandleFunc("POST /register", registerUser)
	router.HandleFunc("POST /login", loginUser)
	router.Handle("GET /checkLogin", auth.RequireAuth(http.HandlerFunc(checkLogin)))
	router.Handle("POST /changePassword", auth.RequireAuth(http.HandlerFunc(changePassword)))

	router.Handle("GET /proposals", auth.RequireAuth(http.HandlerFunc(listProposals)))
	router.Handle("POST /proposals", auth.RequireAuth(http.HandlerFunc(createProposal)))
	router.Handle("GET /proposals/{id}", auth.RequireAuth(http.HandlerFunc(getProposal)))
	router.Handle("POST /proposals/{id}/vote", auth.RequireAuth(http.HandlerFunc(voteOnProposal)))
	router.Handle("POST /proposals/{id}/approve", auth.IsAdmin(http.HandlerFunc(approveProposal)))
	router.Handle("POST /proposals/{id}/reject", auth.IsAdmin(http.HandlerFunc(rejectProposal)))

	router.Handle("GET /rules", auth.RequireAuth(http.HandlerFunc(listRules)))
	router.Handle("POST /rules", auth.IsAdmin(http.HandlerFunc(createRule)))
	router.Handle("DELETE /rules/{id}", auth.IsAdmin(http.HandlerFunc(deleteRule)))

	router.Handle("GET /events", auth.RequireAuth(http.HandlerFunc(listEvents)))
	router.Handle("GET /events/{id}/suggestion", auth.RequireAuth(http.HandlerFunc(suggestFromEvent)))
	router.Handle("GET /machines", auth.RequireAuth(http.HandlerFunc(listMachines)))

	router.Handle("GET /users", auth.IsAdmin(http.HandlerFunc(listUsers)))
	router.Handle("GET /instances", auth.IsAdmin(http.HandlerFunc(listInstances)))

	// Santa agent endpoints authenticate by machine identity, not JWT.
	router.Handle("POST /santa/preflight/{machine_id}", decompressBody(http.HandlerFunc(preflight)))
	router.Handle("POST /santa/eventupload/{machine_id}", decompressBody(http.HandlerFunc(eventUpload)))
	router.Handle("POST /santa/ruledownload/{machine_id}", decompressBody(http.HandlerFunc(ruleDownload)))
	router.Handle("POST /santa/postflight/{machine_id}", decompressBody(http.HandlerFunc(postflight)))

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.Get())
	})

	return router
}

func OpenRoutes(port int, e *governance.Engine) error {
	engine = e

	log.Debug("Routes opened")

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: enableCORS(buildRouter()),
	}

	log.Infof("Starting krampus backend on port :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
