package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cipherpoll/server/internal/cipherpoll/service"
	"github.com/cipherpoll/server/internal/cipherpoll/store"
	"github.com/cipherpoll/server/internal/cipherpoll/types"
)

type Dependencies struct {
	Logger  *slog.Logger
	Addr    string
	Guard   *service.AccessGuard
	Batches *service.BatchLedger
	Tally   *service.EncryptedTally
	Bridge  *service.DecryptionBridge

	// MetricsHandler serves /metrics when set; defaults to promhttp.Handler.
	MetricsHandler http.Handler
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	guard      *service.AccessGuard
	batches    *service.BatchLedger
	tally      *service.EncryptedTally
	bridge     *service.DecryptionBridge
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:  d.Logger,
		mux:     mux,
		guard:   d.Guard,
		batches: d.Batches,
		tally:   d.Tally,
		bridge:  d.Bridge,
	}

	mux.HandleFunc("POST /v1/admin/providers/add", s.handleAddProvider)
	mux.HandleFunc("POST /v1/admin/providers/remove", s.handleRemoveProvider)
	mux.HandleFunc("POST /v1/admin/pause", s.handleSetPaused)
	mux.HandleFunc("POST /v1/admin/cooldown", s.handleSetCooldown)

	mux.HandleFunc("POST /v1/batches/open", s.handleOpenBatch)
	mux.HandleFunc("POST /v1/batches/close", s.handleCloseBatch)
	mux.HandleFunc("GET /v1/batches/{id}", s.handleGetBatch)

	mux.HandleFunc("POST /v1/submissions", s.handleSubmission)

	mux.HandleFunc("POST /v1/decryptions", s.handleRequestDecryption)
	mux.HandleFunc("POST /v1/decryptions/callback", s.handleDecryptionCallback)
	mux.HandleFunc("GET /v1/decryptions/{requestId}", s.handleGetDecryption)

	mux.HandleFunc("GET /v1/healthz", s.handleHealthz)

	metricsHandler := d.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	mux.Handle("GET /metrics", metricsHandler)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}

func serverTime() string { return time.Now().UTC().Format(time.RFC3339) }

// ── Admin ────────────────────────────────────────────────────────────────────

func (s *Server) handleAddProvider(w http.ResponseWriter, r *http.Request) {
	var req types.ProviderChangeRequest
	if !decode(w, r, &req) {
		return
	}
	if writeServiceError(w, s.guard.AddProvider(r.Context(), req.Principal, req.Target)) {
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true, ServerTime: serverTime()})
}

func (s *Server) handleRemoveProvider(w http.ResponseWriter, r *http.Request) {
	var req types.ProviderChangeRequest
	if !decode(w, r, &req) {
		return
	}
	if writeServiceError(w, s.guard.RemoveProvider(r.Context(), req.Principal, req.Target)) {
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true, ServerTime: serverTime()})
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req types.PauseRequest
	if !decode(w, r, &req) {
		return
	}
	if writeServiceError(w, s.guard.SetPaused(r.Context(), req.Principal, req.Paused)) {
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true, ServerTime: serverTime()})
}

func (s *Server) handleSetCooldown(w http.ResponseWriter, r *http.Request) {
	var req types.CooldownRequest
	if !decode(w, r, &req) {
		return
	}
	cooldown := time.Duration(req.CooldownSeconds) * time.Second
	if writeServiceError(w, s.guard.SetCooldown(r.Context(), req.Principal, cooldown)) {
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true, ServerTime: serverTime()})
}

// ── Batches ──────────────────────────────────────────────────────────────────

func (s *Server) handleOpenBatch(w http.ResponseWriter, r *http.Request) {
	var req types.BatchOpenRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.batches.Open(r.Context(), req.Principal)
	if writeServiceError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, types.BatchOpenResponse{BatchID: id})
}

func (s *Server) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	var req types.BatchCloseRequest
	if !decode(w, r, &req) {
		return
	}
	if writeServiceError(w, s.batches.Close(r.Context(), req.Principal, req.BatchID)) {
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true, ServerTime: serverTime()})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "batch id must be a positive integer")
		return
	}
	batch, err := s.batches.Get(r.Context(), id)
	if writeServiceError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, batchStatusResponse(batch))
}

func batchStatusResponse(batch store.BatchRecord) types.BatchStatusResponse {
	resp := types.BatchStatusResponse{
		BatchID:         batch.ID,
		Open:            batch.Open,
		SubmissionCount: batch.SubmissionCount,
		OpenedAt:        batch.OpenedAt.UTC().Format(time.RFC3339),
	}
	if batch.ClosedAt != nil {
		resp.ClosedAt = batch.ClosedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ── Submissions ──────────────────────────────────────────────────────────────

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	var req types.SubmissionRequest
	if !decode(w, r, &req) {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "ciphertext is not valid base64")
		return
	}
	if writeServiceError(w, s.tally.RecordSubmission(r.Context(), req.Principal, req.BatchID, raw)) {
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true, ServerTime: serverTime()})
}

// ── Decryptions ──────────────────────────────────────────────────────────────

func (s *Server) handleRequestDecryption(w http.ResponseWriter, r *http.Request) {
	var req types.DecryptionRequest
	if !decode(w, r, &req) {
		return
	}
	requestID, err := s.bridge.RequestDecryption(r.Context(), req.Principal, req.BatchID)
	if writeServiceError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, types.DecryptionResponse{RequestID: requestID})
}

func (s *Server) handleDecryptionCallback(w http.ResponseWriter, r *http.Request) {
	var req types.DecryptionCallback
	if !decode(w, r, &req) {
		return
	}
	cleartext, err := base64.StdEncoding.DecodeString(req.Cleartext)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "cleartext is not valid base64")
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "proof is not valid base64")
		return
	}
	if writeServiceError(w, s.bridge.OnDecryptionResult(r.Context(), req.RequestID, cleartext, proof)) {
		return
	}
	writeJSON(w, http.StatusOK, types.OKResponse{OK: true, ServerTime: serverTime()})
}

func (s *Server) handleGetDecryption(w http.ResponseWriter, r *http.Request) {
	req, err := s.bridge.Request(r.Context(), r.PathValue("requestId"))
	if writeServiceError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, decryptionStatusResponse(req))
}

func decryptionStatusResponse(req store.RequestRecord) types.DecryptionStatusResponse {
	resp := types.DecryptionStatusResponse{
		RequestID:   req.RequestID,
		BatchID:     req.BatchID,
		Finalized:   req.Finalized,
		RequestedAt: req.RequestedAt.UTC().Format(time.RFC3339),
	}
	if req.Finalized {
		yes, no := req.YesCount, req.NoCount
		resp.YesCount = &yes
		resp.NoCount = &no
		if req.FinalizedAt != nil {
			resp.FinalizedAt = req.FinalizedAt.UTC().Format(time.RFC3339)
		}
	}
	return resp
}

// ── Health ───────────────────────────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{OK: true, ServerTime: serverTime()})
}
