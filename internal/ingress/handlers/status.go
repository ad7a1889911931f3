package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/zonecourier/zonecourier/internal/ingress/models"
)

// Status godoc
// @Summary Composite health/telemetry document
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Security AppAuth
// @Router /status [get]
func (h *Handler) Status(c *gin.Context) {
	resp, err := h.manager.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("status: failed to assemble status", "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "storage failure"})
		return
	}

	resp.Host = sampleHostStats()
	c.JSON(http.StatusOK, resp)
}

// sampleHostStats takes a short CPU sample the way the teacher's
// health handler does; failures are non-fatal, fields stay zero.
func sampleHostStats() models.HostStats {
	var h models.HostStats
	if vm, err := mem.VirtualMemory(); err == nil {
		h.MemTotalMB = float64(vm.Total) / 1024 / 1024
		h.MemUsedMB = float64(vm.Used) / 1024 / 1024
		h.MemPercent = vm.UsedPercent
	}
	if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
		h.CPUPercent = pct[0]
	}
	return h
}
