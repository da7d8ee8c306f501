package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/agentmesh/router/jobstore"
	"github.com/agentmesh/router/orchestration"
	"github.com/agentmesh/router/router"
	"github.com/agentmesh/router/worker"
)

type chatRequestBody struct {
	Messages  []router.Message `json:"messages"`
	Params    router.Params    `json:"params"`
	SessionID string           `json:"sessionId"`
}

// handleChat implements POST /chat (spec.md §6): router.handle('/', ...),
// streaming the response body as newline-delimited Part JSON.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	strm, err := s.Router.Handle(r.Context(), "/", &router.Request{
		Messages: body.Messages, Params: body.Params, SessionID: body.SessionID,
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	streamParts(w, r, strm)
}

// handleAgent implements POST /agent/<path> (spec.md §6): materialized
// router.toAwaitResponse.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	path := router.Path(r.PathValue("path"))
	var body chatRequestBody
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	res, err := s.Router.ToAwaitResponse(r.Context(), path, &router.Request{
		Messages: body.Messages, Params: body.Params, SessionID: body.SessionID,
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type orchestrateRequestBody struct {
	Config orchestration.Config `json:"config"`
	Input  json.RawMessage      `json:"input"`
}

// handleOrchestrate implements POST /workflows/orchestrate (spec.md §6).
func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var body orchestrateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runID, err := s.Orchestrator.Start(r.Context(), body.Config, body.Input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "status": string(orchestration.RunPending)})
}

// handleWorkflowStatus implements GET /workflows/status?runId=<id> (spec.md §6).
func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runId")
	if runID == "" {
		writeError(w, http.StatusBadRequest, errors.New("httpapi: runId is required"))
		return
	}
	status, err := s.Orchestrator.Status(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	resp := map[string]any{"runId": runID, "status": status.State}
	if status.Result != nil {
		resp["result"] = status.Result
	}
	if status.Err != nil {
		resp["error"] = status.Err.Error()
	}
	if status.Hook != nil {
		resp["hook"] = status.Hook
	}
	writeJSON(w, http.StatusOK, resp)
}

type signalRequestBody struct {
	RunID   string          `json:"runId"`
	Token   string          `json:"token"`
	Payload json.RawMessage `json:"payload"`
}

// handleWorkflowSignal implements POST /workflows/signal (spec.md §6).
func (s *Server) handleWorkflowSignal(w http.ResponseWriter, r *http.Request) {
	var body signalRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Orchestrator.Resume(r.Context(), body.RunID, body.Token, body.Payload); err != nil {
		if errors.Is(err, orchestration.ErrInvalidHook) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

type dispatchRequestBody struct {
	Input      json.RawMessage `json:"input"`
	Mode       string          `json:"mode"`
	WebhookURL string          `json:"webhookUrl"`
	JobID      string          `json:"jobId"`
	Metadata   map[string]any  `json:"metadata"`
}

// handleWorkerDispatch implements POST /workers/<id> (spec.md §6).
func (s *Server) handleWorkerDispatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body dispatchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mode := worker.ModeLocal
	if body.Mode == string(worker.ModeRemote) {
		mode = worker.ModeRemote
	}
	rec, err := s.Workers.Dispatch(r.Context(), id, body.Input, worker.DispatchOptions{
		Mode: mode, WebhookURL: body.WebhookURL, JobID: body.JobID, Metadata: body.Metadata, Async: true,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"jobId": rec.JobID, "status": string(rec.Status), "statusUrl": "/workers/jobs/" + rec.JobID,
	})
}

// handleWorkerJob implements GET /workers/jobs/<jobId> (spec.md §6).
func (s *Server) handleWorkerJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	rec, err := s.Jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleWorkerCallback implements POST /workers/callback (spec.md §6),
// verifying x-webhook-signature against Server.WebhookSecret when set.
func (s *Server) handleWorkerCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !verifyWebhookSignature(s.WebhookSecret, body, []byte(r.Header.Get("x-webhook-signature"))) {
		writeError(w, http.StatusUnauthorized, errors.New("httpapi: invalid webhook signature"))
		return
	}

	var payload worker.CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Workers.HandleCallback(r.Context(), payload); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
