package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/asafgershon/esim-go-sub012/app/repository"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalogsync"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/syncqueue"
)

// Deps carries the wired components the routers expose over HTTP.
type Deps struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Queue   *syncqueue.Queue
	Manager *syncqueue.Manager
	Service *catalogsync.Service
	Repos   *repository.Repositories
}

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter mounts all route groups on the app.
func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewApiRouter(deps), NewOpsRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
