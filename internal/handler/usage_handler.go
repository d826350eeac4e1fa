package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pajalhq/pajal-api/internal/service"
	"github.com/pajalhq/pajal-api/pkg/response"
)

// UsageHandler exposes administrator dashboard aggregates.
type UsageHandler struct {
	usage *service.UsageService
}

// NewUsageHandler constructs UsageHandler.
func NewUsageHandler(usage *service.UsageService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// Report godoc
// @Summary App usage report
// @Description Session status counts, room usage, and account counts per role
// @Tags Usage
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/usage [get]
func (h *UsageHandler) Report(c *gin.Context) {
	report, cached, err := h.usage.Report(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil, map[string]interface{}{"cached": cached})
}
