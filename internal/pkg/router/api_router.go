package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/asafgershon/esim-go-sub012/internal/api/v1"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1")
	apiServer := apiv1.NewSyncAPI(h.deps.Manager, h.deps.Service, h.deps.Repos)
	apiServer.RegisterRoutes(v1)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
