package controller

import (
	"net/http"

	"github.com/cassiomorais/storepay/internal/middleware"
	"github.com/cassiomorais/storepay/internal/service"
)

type RefundController struct {
	service *service.RefundService
}

func NewRefundController(svc *service.RefundService) *RefundController {
	return &RefundController{service: svc}
}

// Refund handles POST /api/v1/stores/{storeID}/orders/{orderID}/refunds
func (h *RefundController) Refund(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req RefundRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	requestedBy, _ := middleware.GetUserID(r.Context())
	resp, err := h.service.Refund(r.Context(), service.RefundRequest{
		StoreID:     storeIDFrom(r),
		OrderID:     orderID,
		Amount:      req.Amount,
		Reason:      req.Reason,
		RequestedBy: requestedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromRefund(resp))
}
