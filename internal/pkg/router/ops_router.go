package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiv1 "github.com/asafgershon/esim-go-sub012/internal/api/v1"
)

// OpsRouter exposes the operational endpoints: health and metrics.
type OpsRouter struct {
	deps Deps
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", apiv1.HealthHandler(h.deps.DB, h.deps.Redis, h.deps.Queue))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func NewOpsRouter(deps Deps) *OpsRouter {
	return &OpsRouter{deps: deps}
}
