package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cassiomorais/storepay/internal/service"
)

// PendingPaymentController serves the checkout and order collaborators.
type PendingPaymentController struct {
	service *service.PendingPaymentService
}

func NewPendingPaymentController(svc *service.PendingPaymentService) *PendingPaymentController {
	return &PendingPaymentController{service: svc}
}

// Create handles POST /api/v1/stores/{storeID}/pending-payments
func (h *PendingPaymentController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePendingPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.service.Create(r.Context(), service.CreatePendingPaymentRequest{
		StoreID:       storeIDFrom(r),
		Provider:      req.Provider,
		CorrelationID: req.CorrelationID,
		Snapshot:      req.snapshot(),
		TTL:           time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromPendingPayment(p))
}

// Get handles GET /api/v1/stores/{storeID}/pending-payments/{id}
func (h *PendingPaymentController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), storeIDFrom(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPendingPayment(p))
}

// AttachCorrelation handles PUT /api/v1/stores/{storeID}/pending-payments/{id}/correlation
func (h *PendingPaymentController) AttachCorrelation(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req AttachCorrelationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.service.AttachCorrelation(r.Context(), storeIDFrom(r), id, req.CorrelationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPendingPayment(p))
}

// ListConfirmed handles GET /api/v1/stores/{storeID}/pending-payments/confirmed
func (h *PendingPaymentController) ListConfirmed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	ps, err := h.service.ListConfirmed(r.Context(), storeIDFrom(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPendingPayments(ps))
}

// Consume handles POST /api/v1/stores/{storeID}/pending-payments/{id}/consume
func (h *PendingPaymentController) Consume(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.service.Consume(r.Context(), storeIDFrom(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPendingPayment(p))
}
