package controller

import (
	"net/http"

	"github.com/cassiomorais/storepay/internal/service"
)

// ProviderConfigController manages per-store gateway configuration.
// Credentials are accepted on writes and never returned.
type ProviderConfigController struct {
	service *service.ProviderConfigService
}

func NewProviderConfigController(svc *service.ProviderConfigService) *ProviderConfigController {
	return &ProviderConfigController{service: svc}
}

// Create handles POST /api/v1/stores/{storeID}/provider-configs
func (h *ProviderConfigController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProviderConfigRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.service.Create(r.Context(), service.CreateProviderConfigRequest{
		StoreID:     storeIDFrom(r),
		Provider:    req.Provider,
		DisplayName: req.DisplayName,
		Credentials: req.Credentials,
		Settings:    req.Settings,
		TestMode:    req.TestMode,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromProviderConfig(cfg))
}

// List handles GET /api/v1/stores/{storeID}/provider-configs
func (h *ProviderConfigController) List(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.service.List(r.Context(), storeIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]*ProviderConfigResponse, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, FromProviderConfig(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider_configs":    out,
		"supported_providers": h.service.SupportedProviders(),
	})
}

// Get handles GET /api/v1/stores/{storeID}/provider-configs/{id}
func (h *ProviderConfigController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.service.Get(r.Context(), storeIDFrom(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromProviderConfig(cfg))
}

// Update handles PUT /api/v1/stores/{storeID}/provider-configs/{id}
func (h *ProviderConfigController) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req UpdateProviderConfigRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.service.Update(r.Context(), storeIDFrom(r), id, req.update())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromProviderConfig(cfg))
}

// SetDefault handles POST /api/v1/stores/{storeID}/provider-configs/{id}/default
func (h *ProviderConfigController) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.service.SetDefault(r.Context(), storeIDFrom(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromProviderConfig(cfg))
}

// Delete handles DELETE /api/v1/stores/{storeID}/provider-configs/{id}
func (h *ProviderConfigController) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), storeIDFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
