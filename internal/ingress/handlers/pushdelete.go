package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zonecourier/zonecourier/internal/apperr"
	"github.com/zonecourier/zonecourier/internal/ingress/models"
	"github.com/zonecourier/zonecourier/internal/worker"
)

// PushOrDelete godoc
// @Summary Push or delete a zone
// @Description Action discriminates a zone push from a zone delete in one body
// @Tags admission
// @Accept json
// @Produce json
// @Param body body models.PushDeleteRequest true "push/delete request"
// @Success 200 {object} models.AcceptedResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security AppAuth
// @Router /CMD_API_DNS_ADMIN [post]
func (h *Handler) PushOrDelete(c *gin.Context) {
	var req models.PushDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apperr.MalformedInput("malformed request", err))
		return
	}

	switch req.Action {
	case "push":
		h.push(c, req)
	case "delete":
		h.delete(c, req)
	default:
		writeErr(c, apperr.New(apperr.KindMalformedInput, "unknown action"))
	}
}

func (h *Handler) push(c *gin.Context, req models.PushDeleteRequest) {
	existing, err := h.manager.GetDomain(c.Request.Context(), req.ZoneName)
	if err != nil {
		h.logger.Error("push: failed to read existing domain", "zone_name", req.ZoneName, "err", err)
		writeErr(c, apperr.StorageFailure("failed to read existing domain", err))
		return
	}
	if existing != nil && existing.UpstreamServerHostname != "" && existing.UpstreamServerHostname != req.UpstreamHostname {
		h.logger.Info("[migration] zone ownership transferred at push",
			"zone_name", req.ZoneName, "from", existing.UpstreamServerHostname, "to", req.UpstreamHostname)
		if err := h.manager.TransferOwnership(c.Request.Context(), req.ZoneName, req.UpstreamHostname, req.UpstreamUsername); err != nil {
			h.logger.Error("push: failed to transfer ownership", "zone_name", req.ZoneName, "err", err)
			writeErr(c, apperr.StorageFailure("failed to transfer ownership", err))
			return
		}
	}

	if err := h.manager.EnqueueSave(worker.SaveItem{
		ZoneName:         req.ZoneName,
		ZoneText:         req.ZoneText,
		UpstreamHostname: req.UpstreamHostname,
		UpstreamUsername: req.UpstreamUsername,
		EnqueuedAt:       time.Now(),
	}); err != nil {
		h.logger.Error("push: failed to enqueue save", "zone_name", req.ZoneName, "err", err)
		writeErr(c, apperr.StorageFailure("failed to enqueue save", err))
		return
	}

	c.JSON(http.StatusOK, models.AcceptedResponse{Status: "queued", ZoneName: req.ZoneName})
}

func (h *Handler) delete(c *gin.Context, req models.PushDeleteRequest) {
	existing, err := h.manager.GetDomain(c.Request.Context(), req.ZoneName)
	if err != nil {
		h.logger.Error("delete: failed to read existing domain", "zone_name", req.ZoneName, "err", err)
		writeErr(c, apperr.StorageFailure("failed to read existing domain", err))
		return
	}
	if existing != nil && existing.UpstreamServerHostname != "" && existing.UpstreamServerHostname != req.UpstreamHostname {
		h.logger.Warn("non-owner delete rejected (Keep-DNS scenario)",
			"zone_name", req.ZoneName, "owner", existing.UpstreamServerHostname, "requester", req.UpstreamHostname)
		writeErr(c, apperr.OwnershipConflict("non-owner delete rejected"))
		return
	}

	if err := h.manager.EnqueueDelete(worker.DeleteItem{
		ZoneName:         req.ZoneName,
		UpstreamHostname: req.UpstreamHostname,
		EnqueuedAt:       time.Now(),
	}); err != nil {
		h.logger.Error("delete: failed to enqueue delete", "zone_name", req.ZoneName, "err", err)
		writeErr(c, apperr.StorageFailure("failed to enqueue delete", err))
		return
	}

	c.JSON(http.StatusOK, models.AcceptedResponse{Status: "queued", ZoneName: req.ZoneName})
}
