package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zonecourier/zonecourier/internal/ingress/models"
)

// ListZones godoc
// @Summary List all replicated zones
// @Tags peer
// @Produce json
// @Success 200 {object} models.ZoneListResponse
// @Security PeerAuth
// @Router /internal/zones [get]
func (h *Handler) ListZones(c *gin.Context) {
	zones, err := h.manager.ListZones(c.Request.Context())
	if err != nil {
		h.logger.Error("list_internal: failed to list zones", "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "storage failure"})
		return
	}
	c.JSON(http.StatusOK, models.ZoneListResponse{Zones: zones})
}

// GetZone godoc
// @Summary Get one zone's replicated metadata
// @Tags peer
// @Produce json
// @Param domain query string true "zone name"
// @Success 200 {object} models.ZoneDTO
// @Failure 404 {object} models.ErrorResponse
// @Security PeerAuth
// @Router /internal/zone [get]
func (h *Handler) GetZone(c *gin.Context) {
	name := c.Query("domain")
	if name == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "domain query parameter is required"})
		return
	}
	zone, err := h.manager.GetZone(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("get_internal: failed to read zone", "zone_name", name, "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "storage failure"})
		return
	}
	if zone == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "zone not found"})
		return
	}
	c.JSON(http.StatusOK, zone)
}

// PeersInternal godoc
// @Summary List known peer URLs
// @Tags peer
// @Produce json
// @Success 200 {object} models.PeerListResponse
// @Security PeerAuth
// @Router /internal/peers [get]
func (h *Handler) PeersInternal(c *gin.Context) {
	c.JSON(http.StatusOK, models.PeerListResponse{Peers: h.manager.PeerURLs()})
}
