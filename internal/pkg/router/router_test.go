package router

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/controllers"
	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/app/repository"
	apiv1 "github.com/Tariqlearnstocode/appchecker-sub001/internal/api/v1"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/audit"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/billing"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/cache"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/database/dbtest"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ledger"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/quota"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/reversal"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/verification"
)

func newTestApp(t *testing.T, limiterMax int) (*fiber.App, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	db := dbtest.New(t)
	sink := audit.NopSink{}
	eval := quota.NewEvaluator(db, quota.Pricing{AmountCents: 4900, Currency: "usd", Display: "49.00"})
	vc := controllers.NewVerificationController(
		verification.NewService(db, eval, nil, sink),
		reversal.NewCoordinator(db, sink),
		eval,
		ledger.New(db),
	)
	svc := billing.NewServiceFromDB(db)
	bc := controllers.NewBillingController(
		billing.NewCheckoutService(svc, nil, billing.Config{}, nil),
		billing.NewReconciler(svc, "whsec_router"),
	)

	acc := &models.Account{Email: "router@example.com"}
	key, err := acc.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, db.Create(acc).Error)

	app := fiber.New()
	InstallRouter(app, Dependencies{
		DB:              db,
		API:             apiv1.NewAPIServer(vc, bc),
		Billing:         bc,
		Accounts:        repository.NewAccountRepository(db),
		LimiterMax:      limiterMax,
		LimiterWindow:   time.Minute,
		MetricsUser:     "admin",
		MetricsPassword: "secret",
	})
	return app, key
}

func get(t *testing.T, app *fiber.App, path, key string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRoutes(t *testing.T) {
	app, key := newTestApp(t, 100)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/ping", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/api/v1/quota", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/api/v1/quota", "ivk_wrong"))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/quota", key))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/usage", key))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/metrics", ""))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/health", ""))

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAPILimiter(t *testing.T) {
	app, key := newTestApp(t, 2)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/ping", key))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/ping", key))
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "/api/v1/ping", key))

	// webhooks are outside the api limiter
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{}`))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
