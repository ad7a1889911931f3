// Package handlers implements the zonecourier ingress HTTP endpoints:
// zone push/delete admission, peer-realm zone replication reads, and
// the composite /status document.
//
// @title zonecourier ingress API
// @version 1.0
// @description Admission and replication API for the zonecourier DNS control plane.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @securityDefinitions.basic AppAuth
// @securityDefinitions.basic PeerAuth
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zonecourier/zonecourier/internal/apperr"
	"github.com/zonecourier/zonecourier/internal/ingress/models"
	"github.com/zonecourier/zonecourier/internal/worker"
)

// Handler holds the dependencies every ingress endpoint needs.
type Handler struct {
	logger    *slog.Logger
	manager   *worker.Manager
	startTime time.Time
}

// New builds a Handler bound to the worker manager that owns the
// queues, store, and peer set this endpoint set reads and writes.
func New(logger *slog.Logger, manager *worker.Manager) *Handler {
	return &Handler{logger: logger, manager: manager, startTime: time.Now()}
}

// writeErr classifies err via errors.As against apperr.Error and picks
// the matching HTTP status, falling back to 500 for anything
// unclassified (a bare storage/driver error that was never wrapped).
func writeErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.Is(err, apperr.KindOwnershipConflict):
		status = http.StatusForbidden
	case apperr.Is(err, apperr.KindMalformedInput):
		status = http.StatusBadRequest
	case apperr.Is(err, apperr.KindAuthFailure):
		status = http.StatusUnauthorized
	}
	c.JSON(status, models.ErrorResponse{Error: err.Error()})
}
