package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/controllers"
	"github.com/Tariqlearnstocode/appchecker-sub001/app/repository"
	apiv1 "github.com/Tariqlearnstocode/appchecker-sub001/internal/api/v1"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/audit"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/billing"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/cache"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/database"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/env"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/jobqueue"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ledger"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/quota"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ratelimit"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/reversal"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/router"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/usage"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/verification"
)

const openAPIPath = "public/docs/v1/openapi.yml"

func main() {
	app, shutdown := NewApplication()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
			log.Printf("fiber shutdown: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires the services and returns the app plus a function that
// stops the background workers.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	cfg := billing.ConfigFromEnv()

	// background jobs
	queue := jobqueue.NewQueue(cache.GetClient(), env.GetEnvInt("JOBQUEUE_WORKERS", 3))
	reporter := usage.NewReporter(usage.NewStripeMeter(cfg.SecretKey, cfg.MeterEventName), queue)
	queue.RegisterHandler(jobqueue.JobTypeUsageReport, reporter.HandleJob)

	// entitlement core
	sink := audit.NewDBSink(db)
	evaluator := quota.NewEvaluator(db, quota.Pricing{
		AmountCents: cfg.OneTimePriceCents(),
		Currency:    cfg.Currency,
		Display:     cfg.FormattedOneTimePrice(),
	})
	verifications := verification.NewService(db, evaluator, reporter, sink)
	reversals := reversal.NewCoordinator(db, sink)

	// billing
	billingSvc := billing.NewServiceFromDB(db)
	reconciler := billing.NewReconciler(billingSvc, cfg.WebhookSecret)
	checkoutLimiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(cache.GetClient(), "ratelimit:"), cfg.CheckoutLimit, cfg.CheckoutWindow)
	checkout := billing.NewCheckoutService(billingSvc, billing.NewStripeProcessor(cfg.SecretKey), cfg, checkoutLimiter)

	manager := jobqueue.NewManager(queue)
	manager.AddTask(jobqueue.PeriodicTask{
		Name:     "webhook-replay",
		Interval: cfg.ReplayInterval,
		Run: func(ctx context.Context) error {
			summary, err := reconciler.ReplayFailed(ctx, cfg.ReplayBatchLimit)
			if summary.Attempted > 0 {
				log.Printf("webhook replay: attempted=%d succeeded=%d failed=%d", summary.Attempted, summary.Succeeded, summary.Failed)
			}
			return err
		},
	})
	manager.Start()

	vc := controllers.NewVerificationController(verifications, reversals, evaluator, ledger.New(db))
	bc := controllers.NewBillingController(checkout, reconciler)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "appchecker",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	specPath := findProjectFile(openAPIPath)
	if specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	} else {
		log.Printf("Warning: %s not found, API docs disabled", openAPIPath)
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		DB:              db,
		API:             apiv1.NewAPIServer(vc, bc),
		Billing:         bc,
		Accounts:        repository.GetGlobalFactory().GetAccountRepository(),
		LimiterStorage:  cache.NewFiberStorage(env.GetEnvInt("LIMITER_REDIS_DB", 3)),
		LimiterMax:      env.GetEnvInt("API_RATE_LIMIT", 120),
		LimiterWindow:   env.GetEnvDuration("API_RATE_WINDOW", time.Minute),
		MetricsUser:     env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
	})

	if specPath != "" {
		if doc, err := apiv1.LoadSpec(context.Background(), specPath); err != nil {
			log.Printf("Warning: %v", err)
		} else if missing := apiv1.Undocumented(doc, app.GetRoutes(true), "/api/v1"); len(missing) > 0 {
			log.Printf("Warning: routes missing from %s: %v", openAPIPath, missing)
		}
	}

	shutdown := func() {
		manager.Stop()
		reporter.Wait()
	}
	return app, shutdown
}

// findProjectFile looks for rel from the working directory and from the
// usual locations relative to cmd/appchecker.
func findProjectFile(rel string) string {
	for _, base := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(base + rel); err == nil {
			return base + rel
		}
	}
	return ""
}
