package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pajalhq/pajal-api/internal/models"
	"github.com/pajalhq/pajal-api/internal/service"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
	"github.com/pajalhq/pajal-api/pkg/response"
)

// PreferenceHandler exposes the caller's settings.
type PreferenceHandler struct {
	prefs *service.PreferenceService
}

// NewPreferenceHandler constructs PreferenceHandler.
func NewPreferenceHandler(prefs *service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs}
}

// Get godoc
// @Summary Get own preferences
// @Tags Preferences
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /preferences [get]
func (h *PreferenceHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	pref, err := h.prefs.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pref, nil)
}

// Update godoc
// @Summary Update own preferences
// @Description Reminder and theme settings only; visibility sets are managed by their own flows
// @Tags Preferences
// @Accept json
// @Produce json
// @Param payload body models.PreferenceUpdateRequest true "Preference payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /preferences [put]
func (h *PreferenceHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.PreferenceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preference payload"))
		return
	}

	pref, err := h.prefs.Update(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pref, nil)
}
