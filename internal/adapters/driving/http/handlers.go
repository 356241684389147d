package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Auth endpoints

type mintTokenRequest struct {
	Identity string `json:"identity"`
}

type mintTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// handleMintToken issues a bearer token bound to a wallet identity.
// The token authenticates API calls only; ownership mutations are
// still verified against the ledger.
func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	var req mintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	token, err := s.tokens.Mint(req.Identity, s.tokenTTL)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mintTokenResponse{
		Token:     token,
		ExpiresIn: int64(s.tokenTTL.Seconds()),
	})
}

// Ingestion saga endpoints

type uploadDocumentRequest struct {
	Filename   string `json:"filename"`
	Content    []byte `json:"content"` // base64 in JSON
	Visibility string `json:"visibility,omitempty"`
}

type uploadDocumentResponse struct {
	Document     *domain.DocumentRecord      `json:"document"`
	Registration *domain.UnsignedTransaction `json:"registration"`
}

// handleUploadDocument accepts a payload, stores it, and returns the
// unsigned registration transaction for the caller's wallet to sign.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())

	var req uploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.ingestionService.BeginIntake(r.Context(), driving.IntakeRequest{
		OwnerIdentity: identity,
		Filename:      req.Filename,
		Content:       req.Content,
		Visibility:    domain.Visibility(req.Visibility),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rec, err = s.ingestionService.AdvanceToStored(r.Context(), rec.DocumentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	tx, err := s.ingestionService.BuildRegistrationRequest(r.Context(), rec.DocumentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rec, err = s.documentService.Get(r.Context(), rec.DocumentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, uploadDocumentResponse{
		Document:     rec,
		Registration: tx,
	})
}

type completeRegistrationRequest struct {
	SignedTxRef string `json:"signed_tx_ref"`
}

// handleCompleteRegistration submits the externally-signed reference
// and queues the document for indexing.
func (s *Server) handleCompleteRegistration(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	var req completeRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.ingestionService.CompleteRegistration(r.Context(), documentID, req.SignedTxRef)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	task := domain.NewTask(domain.TaskTypeIndexDocument, documentID)
	if err := s.taskQueue.Enqueue(r.Context(), task); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document": rec,
		"task_id":  task.ID,
	})
}

func (s *Server) handleRebuildRegistration(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	tx, err := s.ingestionService.BuildRegistrationRequest(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"registration": tx})
}

// handleResumeDocument re-drives a failed document from its last
// checkpoint. A document resumed to registered is queued for indexing
// directly; earlier checkpoints need the client back in the signing
// loop.
func (s *Server) handleResumeDocument(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	rec, err := s.ingestionService.Resume(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"document": rec}
	if rec.State == domain.StateRegistered {
		task := domain.NewTask(domain.TaskTypeIndexDocument, documentID)
		if err := s.taskQueue.Enqueue(r.Context(), task); err != nil {
			writeServiceError(w, err)
			return
		}
		resp["task_id"] = task.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReindexDocument(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	documentID := r.PathValue("id")

	rec, err := s.documentService.Get(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rec.OwnerIdentity != identity {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	task := domain.NewTask(domain.TaskTypeReindexDocument, documentID)
	if err := s.taskQueue.Enqueue(r.Context(), task); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

// Document endpoints

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	docs, err := s.documentService.ListOwned(r.Context(), identity, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	documentID := r.PathValue("id")

	rec, err := s.documentService.Get(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Private documents are indistinguishable from absent ones for
	// non-owners.
	if rec.OwnerIdentity != identity && rec.Visibility != domain.VisibilityPublic {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	documentID := r.PathValue("id")

	rec, err := s.documentService.Get(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rec.OwnerIdentity != identity && rec.Visibility != domain.VisibilityPublic {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	content, err := s.documentService.Download(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (s *Server) handleDocumentStats(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	documentID := r.PathValue("id")

	rec, err := s.documentService.Get(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rec.OwnerIdentity != identity {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	stats, err := s.documentService.Stats(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleVerifyOwnership(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	documentID := r.PathValue("id")

	owned, err := s.documentService.VerifyOwnership(r.Context(), documentID, identity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"owned": owned})
}

type setVisibilityRequest struct {
	Visibility string `json:"visibility"`
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	documentID := r.PathValue("id")

	var req setVisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.ingestionService.SetVisibility(r.Context(), documentID, domain.Visibility(req.Visibility), identity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())
	documentID := r.PathValue("id")

	if err := s.ingestionService.Delete(r.Context(), documentID, identity); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Ledger view

func (s *Server) handleLedgerHoldings(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())

	holdings, err := s.documentService.LedgerHoldings(r.Context(), identity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"holdings": holdings,
		"count":    len(holdings),
	})
}

// Query endpoint

type queryRequest struct {
	Question string   `json:"question"`
	BlobIDs  []string `json:"blob_ids,omitempty"`
	TopK     int      `json:"top_k,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	identity := GetIdentity(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.queryService.Answer(r.Context(), domain.AnswerRequest{
		Question:          req.Question,
		RequesterIdentity: identity,
		BlobIDs:           req.BlobIDs,
		TopK:              req.TopK,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// Helpers

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// writeServiceError maps domain errors to HTTP status codes
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, domain.ErrLedgerRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrStorage),
		errors.Is(err, domain.ErrEmbedding),
		errors.Is(err, domain.ErrGeneration),
		errors.Is(err, domain.ErrLedgerResponse):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
