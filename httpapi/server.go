// Package httpapi is the illustrative HTTP front-end over the Router,
// Orchestration Engine, and Worker Runtime (spec.md §6). The core packages
// are transport-agnostic; this binding uses stdlib net/http only, since
// neither the teacher nor the wider example pack depends on any third-party
// HTTP router (no gorilla/mux, chi, httprouter, or similar appears anywhere
// in go.mod), so Go 1.22+'s http.ServeMux pattern matching is the grounded
// choice rather than an unrequested dependency.
package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/agentmesh/router/jobstore"
	"github.com/agentmesh/router/orchestration"
	"github.com/agentmesh/router/router"
	"github.com/agentmesh/router/telemetry"
	"github.com/agentmesh/router/worker"
)

// Server wires the router, orchestration, and worker subsystems to the HTTP
// endpoints listed in spec.md §6.
type Server struct {
	Router        *router.Router
	Orchestrator  *orchestration.Orchestrator
	Workers       *worker.Runtime
	Jobs          jobstore.Store
	WebhookSecret string
	Logger        telemetry.Logger
}

// Handler builds the complete *http.ServeMux for s.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /agent/{path...}", s.handleAgent)
	mux.HandleFunc("POST /workflows/orchestrate", s.handleOrchestrate)
	mux.HandleFunc("GET /workflows/status", s.handleWorkflowStatus)
	mux.HandleFunc("POST /workflows/signal", s.handleWorkflowSignal)
	mux.HandleFunc("POST /workers/{id}", s.handleWorkerDispatch)
	mux.HandleFunc("GET /workers/jobs/{jobId}", s.handleWorkerJob)
	mux.HandleFunc("POST /workers/callback", s.handleWorkerCallback)
	return mux
}

func (s *Server) logger() telemetry.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return telemetry.NewNopLogger()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// verifyWebhookSignature compares the x-webhook-signature header (hex HMAC-SHA256
// of body, keyed by secret) in constant time.
func verifyWebhookSignature(secret string, body, got []byte) bool {
	if secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), got)
}
