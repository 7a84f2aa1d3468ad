package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	domainErrors "github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/cassiomorais/storepay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrStoreNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrPendingPaymentNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrProviderConfigNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrOrderNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrStoreInactive, http.StatusUnprocessableEntity, "store_inactive"},
	{domainErrors.ErrProviderNotFound, http.StatusBadRequest, "unknown_provider"},
	{domainErrors.ErrInvalidCurrency, http.StatusBadRequest, "invalid_currency"},
	{domainErrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domainErrors.ErrInvalidCredentials, http.StatusBadRequest, "invalid_credentials"},
	{domainErrors.ErrDuplicateProviderConfig, http.StatusConflict, "duplicate_provider"},
	{domainErrors.ErrCorrelationConflict, http.StatusConflict, "correlation_conflict"},
	{domainErrors.ErrAlreadyConsumed, http.StatusConflict, "already_consumed"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrPaymentExpired, http.StatusConflict, "payment_expired"},
	{domainErrors.ErrRefundInProgress, http.StatusConflict, "refund_in_progress"},
	{domainErrors.ErrRefundNotAllowed, http.StatusUnprocessableEntity, "refund_not_allowed"},
	{domainErrors.ErrRefundExceedsPaid, http.StatusUnprocessableEntity, "refund_exceeds_paid"},
	{domainErrors.ErrGatewayFailure, http.StatusBadGateway, "gateway_failure"},
	{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	var domainErr *domainErrors.DomainError
	hasDomainErr := errors.As(err, &domainErr)

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			// gateway messages are shown as-is, without the wrapped sentinel
			if hasDomainErr && domainErr.Message != "" {
				resp.Error = domainErr.Message
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	if hasDomainErr {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError(name, "must be a UUID")
	}
	return id, nil
}

type storeIDKey struct{}

// storeScope parses {storeID} and checks the caller may act on that store.
func storeScope(authz *service.AuthzService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			storeID, err := uuidParam(r, "storeID")
			if err != nil {
				writeError(w, err)
				return
			}
			if err := authz.VerifyStoreAccess(r.Context(), storeID); err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), storeIDKey{}, storeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func storeIDFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(storeIDKey{}).(uuid.UUID)
	return id
}
