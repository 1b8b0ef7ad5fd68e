package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"civicnotify/internal/complaint"
	apperrors "civicnotify/internal/errors"
	"civicnotify/internal/ledger"
	"civicnotify/internal/storage"
)

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Monitor == nil {
		jsonOK(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	jsonOK(w, http.StatusOK, h.deps.Monitor.GetStatus())
}

type actionResp struct {
	ComplaintID string           `json:"complaint_id"`
	Status      complaint.Status `json:"status"`
	Notified    bool             `json:"citizen_notified"`
	Message     string           `json:"message"`
}

// tokenStatus maps a token refusal to its HTTP status.
func tokenStatus(reason apperrors.TokenReason) int {
	switch reason {
	case apperrors.TokenNotFound:
		return http.StatusNotFound
	case apperrors.TokenExpired:
		return http.StatusGone
	case apperrors.TokenAlreadyUsed:
		return http.StatusConflict
	case apperrors.TokenSecretMismatch:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// Action handles GET /api/complaints/action?id=&token=&decision=approve|reject
//
// The token is single use. The decision and the complaint are checked first
// so a malformed link never consumes it, and a failed status write hands the
// token back so the same link can be retried.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, secret, decision := q.Get("id"), q.Get("token"), q.Get("decision")

	if id == "" || secret == "" {
		jsonError(w, "id and token are required", http.StatusBadRequest)
		return
	}

	var status complaint.Status
	switch decision {
	case "approve":
		status = complaint.StatusAcknowledged
	case "reject":
		status = complaint.StatusRejected
	default:
		jsonError(w, "decision must be approve or reject", http.StatusBadRequest)
		return
	}

	if _, err := h.deps.Store.Get(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, "complaint not found", http.StatusNotFound)
			return
		}
		log.Printf("❌ Complaint lookup failed for %s: %v", id, err)
		jsonError(w, "could not load complaint", http.StatusInternalServerError)
		return
	}

	if err := h.deps.Tokens.Consume(r.Context(), id, secret); err != nil {
		if reason, ok := apperrors.TokenReasonOf(err); ok {
			log.Printf("⚠️  Action link refused for %s: %s", id, reason)
			jsonError(w, "action link "+string(reason), tokenStatus(reason))
			return
		}
		log.Printf("❌ Token check failed for %s: %v", id, err)
		jsonError(w, "could not verify action link", http.StatusInternalServerError)
		return
	}

	updated, err := h.deps.Store.UpdateStatus(r.Context(), id, status)
	if err != nil {
		if relErr := h.deps.Tokens.Release(context.WithoutCancel(r.Context()), id, secret); relErr != nil {
			log.Printf("❌ CRITICAL - action link for %s stays consumed: %v", id, relErr)
		}
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, "complaint not found", http.StatusNotFound)
			return
		}
		log.Printf("❌ Status update failed for %s: %v", id, err)
		jsonError(w, "could not update complaint", http.StatusInternalServerError)
		return
	}

	log.Printf("✓ Complaint %s marked %s by department", id, status)

	resp := actionResp{ComplaintID: id, Status: status, Notified: true, Message: "Complaint " + string(status)}

	ev := complaint.Event{
		ID:          uuid.NewString(),
		Kind:        complaint.EventStatusChanged,
		ComplaintID: id,
		Complaint:   &updated,
		OccurredAt:  h.now(),
	}
	if err := h.deps.Events.Submit(r.Context(), ev); err != nil {
		log.Printf("⚠️  Could not queue citizen update for %s: %v", id, err)
		resp.Notified = false
	}

	jsonOK(w, http.StatusOK, resp)
}

type deliveriesResp struct {
	ComplaintID string                      `json:"complaint_id"`
	Deliveries  []complaint.DispatchAttempt `json:"deliveries"`
}

// Deliveries handles GET /api/complaints/{id}/deliveries
func (h *Handler) Deliveries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rows, err := h.deps.Ledger.List(r.Context(), ledger.Filter{ComplaintID: id})
	if err != nil {
		log.Printf("❌ Ledger read failed for %s: %v", id, err)
		jsonError(w, "could not read deliveries", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []complaint.DispatchAttempt{}
	}
	jsonOK(w, http.StatusOK, deliveriesResp{ComplaintID: id, Deliveries: rows})
}

// Stats handles GET /api/deliveries/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Ledger.Stats(r.Context())
	if err != nil {
		jsonError(w, "could not read ledger stats", http.StatusInternalServerError)
		return
	}
	jsonOK(w, http.StatusOK, map[string]any{"total": stats.Total(), "outcomes": stats})
}

// SubmitEvent handles POST /api/events
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var ev complaint.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ev.Kind != complaint.EventCreated && ev.Kind != complaint.EventStatusChanged {
		jsonError(w, "kind must be created or status_changed", http.StatusBadRequest)
		return
	}
	if ev.ComplaintID == "" && ev.Complaint != nil {
		ev.ComplaintID = ev.Complaint.ID
	}
	if ev.ComplaintID == "" {
		jsonError(w, "complaint_id is required", http.StatusBadRequest)
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = h.now()
	}

	if err := h.deps.Events.Submit(r.Context(), ev); err != nil {
		jsonError(w, "could not queue event", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, http.StatusAccepted, map[string]string{"event_id": ev.ID})
}
