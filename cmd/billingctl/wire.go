package main

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/repository"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/audit"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/billing"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/database"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/env"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/quota"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/reversal"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/verification"
)

type app struct {
	accounts      repository.AccountRepository
	evaluator     *quota.Evaluator
	verifications *verification.Service
	reversals     *reversal.Coordinator
	reconciler    *billing.Reconciler
	now           func() time.Time
}

func wireApp() (*app, error) {
	// Without a .env file the process environment is used.
	env.LoadEnvFile()
	database.SetupDatabase()
	db := database.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return newApp(db, billing.ConfigFromEnv()), nil
}

// newApp builds the services the commands need. Usage is never reported to
// Stripe from here; the API server owns metering.
func newApp(db *gorm.DB, cfg billing.Config) *app {
	sink := audit.NewDBSink(db)
	evaluator := quota.NewEvaluator(db, quota.Pricing{
		AmountCents: cfg.OneTimePriceCents(),
		Currency:    cfg.Currency,
		Display:     cfg.FormattedOneTimePrice(),
	})

	return &app{
		accounts:      repository.NewAccountRepository(db),
		evaluator:     evaluator,
		verifications: verification.NewService(db, evaluator, nil, sink),
		reversals:     reversal.NewCoordinator(db, sink),
		reconciler:    billing.NewReconciler(billing.NewServiceFromDB(db), cfg.WebhookSecret),
		now:           time.Now,
	}
}
