package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/starfield/server/internal/auth"
	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/streaming"
)

// AdminHandlers handles operator-only universe controls
type AdminHandlers struct {
	manager   *streaming.Manager
	validator *validator.Validate
	logger    *slog.Logger
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(manager *streaming.Manager, logger *slog.Logger) *AdminHandlers {
	return &AdminHandlers{
		manager:   manager,
		validator: validator.New(),
		logger:    logger.With("component", "admin"),
	}
}

// SeedRequest is the body of PUT /api/admin/universe/seed
type SeedRequest struct {
	Seed string `json:"seed" validate:"required,max=256"`
}

// CustomSeedRequest is the body of PUT /api/admin/universe/custom-seed
type CustomSeedRequest struct {
	Enabled bool   `json:"enabled"`
	Seed    string `json:"seed" validate:"required_if=Enabled true,max=256"`
}

// SettingsRequest is the body of PUT /api/admin/universe/settings. Absent
// fields keep their current values.
type SettingsRequest struct {
	ViewRadius *int               `json:"view_radius" validate:"omitempty,gte=0,lte=16"`
	MaxVisible *int               `json:"max_visible" validate:"omitempty,gte=1"`
	Generation *procedural.Params `json:"generation"`
}

// ReseedResponse reports the universe after an admin action.
type ReseedResponse struct {
	streaming.Info
	Reseeded bool `json:"reseeded"`
}

// SetSeed handles PUT /api/admin/universe/seed
func (h *AdminHandlers) SetSeed(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	info := h.manager.SetActiveSeed(req.Seed)
	h.logger.Info("seed replaced by operator", "subject", operatorSubject(r), "epoch", info.Epoch)
	respondJSON(w, http.StatusOK, ReseedResponse{Info: info, Reseeded: true})
}

// SetCustomSeed handles PUT /api/admin/universe/custom-seed
func (h *AdminHandlers) SetCustomSeed(w http.ResponseWriter, r *http.Request) {
	var req CustomSeedRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	info, changed := h.manager.UseCustomSeed(req.Enabled, req.Seed)
	h.logger.Info("custom seed toggled by operator",
		"subject", operatorSubject(r),
		"enabled", req.Enabled,
		"reseeded", changed,
		"epoch", info.Epoch,
	)
	respondJSON(w, http.StatusOK, ReseedResponse{Info: info, Reseeded: changed})
}

// ResetCache handles DELETE /api/admin/universe/cache
func (h *AdminHandlers) ResetCache(w http.ResponseWriter, r *http.Request) {
	info := h.manager.ResetCache()
	h.logger.Info("cache reset by operator", "subject", operatorSubject(r), "epoch", info.Epoch)
	respondJSON(w, http.StatusOK, ReseedResponse{Info: info, Reseeded: true})
}

// UpdateSettings handles PUT /api/admin/universe/settings
func (h *AdminHandlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	before := h.manager.Info()
	settings := h.manager.Settings()
	if req.ViewRadius != nil {
		settings.ViewRadius = *req.ViewRadius
	}
	if req.MaxVisible != nil {
		settings.MaxVisible = *req.MaxVisible
	}
	if req.Generation != nil {
		settings.Generation = *req.Generation
	}

	info, err := h.manager.Configure(settings)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Info("settings updated by operator",
		"subject", operatorSubject(r),
		"view_radius", settings.ViewRadius,
		"max_visible", settings.MaxVisible,
	)
	respondJSON(w, http.StatusOK, struct {
		ReseedResponse
		Settings streaming.Settings `json:"settings"`
	}{
		ReseedResponse: ReseedResponse{Info: info, Reseeded: info.Epoch != before.Epoch},
		Settings:       h.manager.Settings(),
	})
}

func operatorSubject(r *http.Request) string {
	if claims, ok := auth.GetClaims(r); ok {
		return claims.Subject
	}
	return ""
}
