package controller

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/cassiomorais/storepay/internal/domain/callbacklog"
	"github.com/cassiomorais/storepay/internal/infrastructure/config"
	"github.com/cassiomorais/storepay/internal/service"
	"github.com/go-chi/chi/v5"
)

// CallbackController receives gateway webhooks and customer redirects.
type CallbackController struct {
	reconciler *service.ReconciliationService
	redirect   config.RedirectConfig
}

func NewCallbackController(reconciler *service.ReconciliationService, redirect config.RedirectConfig) *CallbackController {
	return &CallbackController{reconciler: reconciler, redirect: redirect}
}

// Webhook handles POST /webhooks/{provider} and /webhooks/{provider}/{store}.
// Business outcomes are always acknowledged with a 2xx so the gateway stops
// retrying; only infrastructure failures answer 500.
func (h *CallbackController) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large", Code: "payload_too_large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "could not read body", Code: "invalid_request"})
		return
	}

	res, err := h.reconciler.Reconcile(r.Context(), service.InboundCallback{
		Channel:   callbacklog.ChannelWebhook,
		Provider:  chi.URLParam(r, "provider"),
		StoreSlug: storeSlug(r),
		Body:      body,
		Headers:   r.Header,
		Query:     r.URL.Query(),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"})
		return
	}

	if len(res.AckBody) > 0 {
		ct := res.AckContentType
		if ct == "" {
			ct = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(http.StatusOK)
		w.Write(res.AckBody)
		return
	}
	writeJSON(w, http.StatusOK, CallbackResponse{Received: true, Outcome: string(res.Outcome)})
}

// Return handles GET /checkout/{provider}/return. The customer is sent to the
// store's success or failure page with the pending payment id as token; the
// reconciliation outcome itself never reaches the URL.
func (h *CallbackController) Return(w http.ResponseWriter, r *http.Request) {
	slug := storeSlug(r)
	res, err := h.reconciler.Reconcile(r.Context(), service.InboundCallback{
		Channel:   callbacklog.ChannelRedirect,
		Provider:  chi.URLParam(r, "provider"),
		StoreSlug: slug,
		Headers:   r.Header,
		Query:     r.URL.Query(),
	})
	// failures are logged by the reconciler; the customer sees the failure page

	success := err == nil && res.Confirmed
	token := ""
	if err == nil && res.PendingPaymentID != nil {
		token = res.PendingPaymentID.String()
	}

	target := h.redirect.ResultURL(success, slug)
	if target == "" {
		status := "failure"
		if success {
			status = "success"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status, "token": token})
		return
	}
	http.Redirect(w, r, withToken(target, token), http.StatusFound)
}

func storeSlug(r *http.Request) string {
	if s := chi.URLParam(r, "store"); s != "" {
		return s
	}
	return r.URL.Query().Get("store")
}

func withToken(target, token string) string {
	if token == "" {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
