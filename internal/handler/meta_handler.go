package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pajalhq/pajal-api/internal/schedule"
	"github.com/pajalhq/pajal-api/pkg/clock"
	"github.com/pajalhq/pajal-api/pkg/response"
)

// MetaHandler serves the static scheduling vocabulary: offered class types for
// the current academic period and the room floor plan.
type MetaHandler struct {
	clock    clock.Clock
	location *time.Location
}

// NewMetaHandler constructs MetaHandler.
func NewMetaHandler(clk clock.Clock, location *time.Location) *MetaHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	if location == nil {
		location = time.UTC
	}
	return &MetaHandler{clock: clk, location: location}
}

// ClassTypes godoc
// @Summary List class types offered this period
// @Tags Meta
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /meta/class-types [get]
func (h *MetaHandler) ClassTypes(c *gin.Context) {
	labels := schedule.AvailableClassTypes(h.clock.Now(), h.location)
	response.JSON(c, http.StatusOK, labels, nil)
}

// Rooms godoc
// @Summary List rooms on the floor plan
// @Tags Meta
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /meta/rooms [get]
func (h *MetaHandler) Rooms(c *gin.Context) {
	response.JSON(c, http.StatusOK, schedule.Rooms(), nil)
}
