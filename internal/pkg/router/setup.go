package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/controllers"
	"github.com/Tariqlearnstocode/appchecker-sub001/app/repository"
	apiv1 "github.com/Tariqlearnstocode/appchecker-sub001/internal/api/v1"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and settings the routers need.
type Dependencies struct {
	DB       *gorm.DB
	API      *apiv1.APIServer
	Billing  *controllers.BillingController
	Accounts repository.AccountRepository

	// LimiterStorage backs the /api limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	LimiterMax     int
	LimiterWindow  time.Duration

	// MetricsUser and MetricsPassword guard /metrics; an empty password
	// leaves the monitor unmounted.
	MetricsUser     string
	MetricsPassword string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Webhook and metrics routes first so they stay outside the /api limiter.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
