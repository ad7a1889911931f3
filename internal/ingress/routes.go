package ingress

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/zonecourier/zonecourier/internal/config"
	"github.com/zonecourier/zonecourier/internal/ingress/handlers"
	"github.com/zonecourier/zonecourier/internal/ingress/middleware"
)

// registerRoutes wires every route in spec.md §6's table onto r, plus
// /metrics and /swagger/*any, grounded on the teacher's api.RegisterRoutes.
func registerRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	app := r.Group("/")
	app.Use(middleware.BasicAuth("app", cfg.Auth.AppUsername, cfg.Auth.AppPassword))
	app.POST("/CMD_API_DNS_ADMIN", h.PushOrDelete)
	app.GET("/status", h.Status)

	peer := r.Group("/internal")
	peer.Use(middleware.BasicAuth("peer", cfg.Auth.PeerUsername, cfg.Auth.PeerPassword))
	peer.GET("/zones", h.ListZones)
	peer.GET("/zone", h.GetZone)
	peer.GET("/peers", h.PeersInternal)
}
