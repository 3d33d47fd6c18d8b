package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rubbereco/rex-negotiation/internal/model"
	"github.com/rubbereco/rex-negotiation/internal/service"
	"github.com/rubbereco/rex-negotiation/internal/store"
)

// PartyResolver turns a Bearer token into a party id.
type PartyResolver interface {
	ResolveParty(ctx context.Context, token string) (string, error)
}

// LocalPartyResolver treats the token as the party id. Development mode
// only, when no identity service is configured.
type LocalPartyResolver struct{}

func (LocalPartyResolver) ResolveParty(ctx context.Context, token string) (string, error) {
	_ = ctx
	return token, nil
}

type Handlers struct {
	svc      *service.Service
	resolver PartyResolver
}

func NewHandlers(svc *service.Service, resolver PartyResolver) *Handlers {
	return &Handlers{svc: svc, resolver: resolver}
}

// Propose opens a proposal (and the negotiation itself on first use).
// POST /v1/subjects/{subject_ref}/propose
func (h *Handlers) Propose(w http.ResponseWriter, r *http.Request) {
	subjectRef := pathParam(r.URL.Path, "/v1/subjects/", "/propose")
	if subjectRef == "" {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "subject_ref is required")
		return
	}

	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req model.ProposeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	n, err := h.svc.Propose(r.Context(), callerID, subjectRef, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Counter supersedes the pending proposal.
// POST /v1/negotiations/{id}/counter
func (h *Handlers) Counter(w http.ResponseWriter, r *http.Request) {
	negotiationID := pathParam(r.URL.Path, "/v1/negotiations/", "/counter")
	if negotiationID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "negotiation id is required")
		return
	}

	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req model.CounterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	n, err := h.svc.CounterPropose(r.Context(), callerID, negotiationID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Accept locks in the pending proposal.
// POST /v1/negotiations/{id}/accept
func (h *Handlers) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "/accept", h.svc.Accept)
}

// Reject resolves the pending proposal and reopens the negotiation.
// POST /v1/negotiations/{id}/reject
func (h *Handlers) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "/reject", h.svc.Reject)
}

// Withdraw closes the negotiation for good.
// POST /v1/negotiations/{id}/withdraw
func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "/withdraw", h.svc.Withdraw)
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, suffix string, op func(context.Context, string, string) (model.Negotiation, error)) {
	negotiationID := pathParam(r.URL.Path, "/v1/negotiations/", suffix)
	if negotiationID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "negotiation id is required")
		return
	}

	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}

	n, err := op(r.Context(), callerID, negotiationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// GetNegotiation returns a snapshot by id.
// GET /v1/negotiations/{id}
func (h *Handlers) GetNegotiation(w http.ResponseWriter, r *http.Request) {
	negotiationID := pathParam(r.URL.Path, "/v1/negotiations/", "")
	if negotiationID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "negotiation id is required")
		return
	}

	n, err := h.svc.Get(r.Context(), negotiationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// GetBySubject returns a snapshot for a business subject.
// GET /v1/subjects/{subject_ref}
func (h *Handlers) GetBySubject(w http.ResponseWriter, r *http.Request) {
	subjectRef := pathParam(r.URL.Path, "/v1/subjects/", "")
	if subjectRef == "" {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "subject_ref is required")
		return
	}

	n, err := h.svc.GetBySubject(r.Context(), subjectRef)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ListNegotiations returns a party's negotiations, newest first.
// GET /v1/negotiations?party_id={id}&limit={n}
func (h *Handlers) ListNegotiations(w http.ResponseWriter, r *http.Request) {
	partyID := r.URL.Query().Get("party_id")
	if partyID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "party_id is required")
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	negotiations, err := h.svc.ListByParty(r.Context(), partyID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"party_id":     partyID,
		"negotiations": negotiations,
		"total":        len(negotiations),
	})
}

func (h *Handlers) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	partyID, err := h.resolver.ResolveParty(r.Context(), token)
	if err != nil {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return "", false
	}
	return partyID, true
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeError maps engine and store sentinels to HTTP statuses. Every
// rejected transition carries a machine code so the UI can explain the
// specific reason instead of a generic failure.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	body := errorBody{Message: err.Error()}

	switch {
	case errors.Is(err, service.ErrValidation):
		status, body.Code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, service.ErrNotParticipant):
		status, body.Code = http.StatusForbidden, "not_participant"
	case errors.Is(err, store.ErrNotFound):
		status, body.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrNotYourTurn):
		status, body.Code = http.StatusConflict, "not_your_turn"
	case errors.Is(err, service.ErrInvalidTransition):
		status, body.Code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, service.ErrNoActiveProposal):
		status, body.Code = http.StatusConflict, "no_active_proposal"
	case errors.Is(err, service.ErrNegotiationClosed):
		status, body.Code = http.StatusConflict, "negotiation_closed"
	case errors.Is(err, store.ErrConcurrentModification):
		status, body.Code, body.Retryable = http.StatusConflict, "concurrent_modification", true
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		status, body.Code, body.Message = http.StatusInternalServerError, "internal_error", "internal error"
	}

	writeJSON(w, status, body)
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	defer func() { _ = r.Body.Close() }()
	return json.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func pathParam(path string, prefix string, suffix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(path, prefix)
	if suffix != "" {
		if !strings.HasSuffix(rest, suffix) {
			return ""
		}
		rest = strings.TrimSuffix(rest, suffix)
	}
	rest = strings.Trim(rest, "/")
	// take first segment
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
