package ingress

import (
	"embed"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// dashboard is a tiny bundled operator page showing queue depths and
// overall state, adapted from the teacher's embedded-SPA mount
// (internal/api/spa_mount.go) down to a single static file: this
// daemon has no built frontend, just a status page, so a full
// SPA-fallback mount would serve no purpose.
//
//go:embed dashboard/*
var dashboard embed.FS

func mountDashboard(r *gin.Engine) {
	fs, err := static.EmbedFolder(dashboard, "dashboard")
	if err != nil {
		panic("ingress: failed to load embedded dashboard: " + err.Error())
	}
	r.Use(static.Serve("/", fs))
}
