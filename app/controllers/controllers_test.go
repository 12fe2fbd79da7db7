package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/audit"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/billing"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/database/dbtest"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/entitlements"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ledger"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/quota"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ratelimit"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/reversal"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/usercontext"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/verification"
)

const webhookSecret = "whsec_controller_test"

type stubProcessor struct{ n int }

func (p *stubProcessor) CreateCustomer(_ context.Context, req billing.CustomerRequest) (string, error) {
	return fmt.Sprintf("cus_stub_%d", req.AccountID), nil
}

func (p *stubProcessor) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	p.n++
	id := fmt.Sprintf("cs_stub_%d", p.n)
	return &billing.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (p *stubProcessor) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	return "https://portal.example/" + customerID, nil
}

type harness struct {
	app *fiber.App
	db  *gorm.DB
}

// fakeAuth trusts the X-Account header so tests can act as any account.
func fakeAuth(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Get("X-Account"), 10, 64)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	usercontext.Set(c, usercontext.AccountContext{AccountID: uint(id), IsAuthenticated: true})
	return c.Next()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.New(t)
	sink := audit.NewDBSink(db)
	eval := quota.NewEvaluator(db, quota.Pricing{AmountCents: 4900, Currency: "usd", Display: "49.00"})

	vc := NewVerificationController(
		verification.NewService(db, eval, nil, sink),
		reversal.NewCoordinator(db, sink),
		eval,
		ledger.New(db),
	)

	store := ratelimit.NewMemoryStore(time.Minute)
	t.Cleanup(store.Close)
	cfg := billing.Config{
		PriceIDs:       map[entitlements.Plan]string{entitlements.PlanStarter: "price_starter", entitlements.PlanPro: "price_pro"},
		OneTimePriceID: "price_once",
		OneTimePrice:   decimal.RequireFromString("49.00"),
		Currency:       "usd",
	}
	svc := billing.NewServiceFromDB(db)
	bc := NewBillingController(
		billing.NewCheckoutService(svc, &stubProcessor{}, cfg, ratelimit.NewLimiter(store, 2, time.Hour)),
		billing.NewReconciler(svc, webhookSecret),
	)

	app := fiber.New()
	api := app.Group("/api/v1", fakeAuth)
	api.Get("/quota", vc.HandleGetQuota)
	api.Get("/verifications", vc.HandleListVerifications)
	api.Post("/verifications", vc.HandleCreateVerification)
	api.Get("/verifications/:id", vc.HandleGetVerification)
	api.Post("/verifications/:id/cancel", vc.HandleCancelVerification)
	api.Get("/usage", vc.HandleListUsage)
	api.Post("/billing/checkout/subscription", bc.HandleCreateSubscriptionCheckout)
	api.Post("/billing/checkout/payment", bc.HandleCreatePaymentCheckout)
	api.Post("/billing/portal", bc.HandleCreatePortalSession)
	app.Post("/webhooks/stripe", bc.HandleStripeWebhook)

	return &harness{app: app, db: db}
}

func (h *harness) do(t *testing.T, method, path string, accountID uint, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account", strconv.FormatUint(uint64(accountID), 10))
	return h.send(t, req)
}

func (h *harness) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

var subject = map[string]string{"subject_name": "Riley Renter", "subject_email": "riley@example.com"}

func TestCreateAndCancelPaygOverHTTP(t *testing.T) {
	h := newHarness(t)
	acc := dbtest.CreateAccount(t, h.db, "")

	status, body := h.do(t, "POST", "/api/v1/verifications", acc.ID, subject)
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	assert.Equal(t, "payment_required", body["error"])
	assert.EqualValues(t, 4900, body["price_cents"])

	completed := time.Now().UTC()
	dbtest.CreatePayment(t, h.db, acc.ID, models.PaymentStatusCompleted, &completed)

	status, body = h.do(t, "GET", "/api/v1/quota", acc.ID, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, "payg", body["source"])

	status, body = h.do(t, "POST", "/api/v1/verifications", acc.ID, subject)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "payg", body["source"])
	v := body["verification"].(map[string]interface{})
	id := uint(v["id"].(float64))

	status, body = h.do(t, "POST", fmt.Sprintf("/api/v1/verifications/%d/cancel", id), acc.ID, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["credit_refunded"])
	assert.Equal(t, "payg", body["source"])

	status, body = h.do(t, "POST", fmt.Sprintf("/api/v1/verifications/%d/cancel", id), acc.ID, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "invalid_state", body["error"])
	assert.Equal(t, "canceled", body["current_status"])

	status, body = h.do(t, "GET", "/api/v1/usage", acc.ID, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 0, body["active"])
}

func TestSubscriptionLimitOverHTTP(t *testing.T) {
	h := newHarness(t)
	acc := dbtest.CreateAccount(t, h.db, "")
	start, end := dbtest.Period(time.Now().Add(-time.Hour))
	dbtest.CreateSubscription(t, h.db, acc.ID, models.PlanTierStarter, start, end)

	for i := 0; i < 10; i++ {
		status, body := h.do(t, "POST", "/api/v1/verifications", acc.ID, subject)
		require.Equal(t, fiber.StatusCreated, status, body)
	}

	status, body := h.do(t, "POST", "/api/v1/verifications", acc.ID, subject)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "quota_exceeded", body["error"])
	assert.EqualValues(t, 10, body["usage"])
	assert.Equal(t, "pro", body["next_plan"])

	status, body = h.do(t, "GET", "/api/v1/verifications", acc.ID, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 10, body["count"])
}

func TestVerificationReadErrors(t *testing.T) {
	h := newHarness(t)
	owner := dbtest.CreateAccount(t, h.db, "")
	other := dbtest.CreateAccount(t, h.db, "")
	v := dbtest.CreateVerification(t, h.db, owner.ID, models.VerificationStatusPending)

	status, _ := h.do(t, "GET", fmt.Sprintf("/api/v1/verifications/%d", v.ID), owner.ID, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body := h.do(t, "GET", fmt.Sprintf("/api/v1/verifications/%d", v.ID), other.ID, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["error"])

	status, _ = h.do(t, "GET", "/api/v1/verifications/99999", owner.ID, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = h.do(t, "GET", "/api/v1/verifications/abc", owner.ID, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = h.do(t, "POST", "/api/v1/verifications", owner.ID, map[string]string{"subject_name": "X"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_failed", body["error"])
}

func TestCheckoutEndpoints(t *testing.T) {
	h := newHarness(t)
	acc := dbtest.CreateAccount(t, h.db, "")

	status, body := h.do(t, "POST", "/api/v1/billing/portal", acc.ID, nil)
	assert.Equal(t, fiber.StatusConflict, status, body)

	status, body = h.do(t, "POST", "/api/v1/billing/checkout/payment", acc.ID, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Contains(t, body["url"], "https://checkout.example/")

	var pending models.OneTimePayment
	require.NoError(t, h.db.Where("stripe_checkout_session_id = ?", body["session_id"]).First(&pending).Error)
	assert.Equal(t, models.PaymentStatusPending, pending.Status)

	status, body = h.do(t, "POST", "/api/v1/billing/portal", acc.ID, nil)
	assert.Equal(t, fiber.StatusOK, status, body)
	assert.Contains(t, body["url"], "https://portal.example/cus_stub_")

	status, body = h.do(t, "POST", "/api/v1/billing/checkout/subscription", acc.ID, map[string]string{"plan": "pro"})
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", body["error"])
}

func TestSubscriptionCheckoutForSubscribedAccount(t *testing.T) {
	h := newHarness(t)
	acc := dbtest.CreateAccount(t, h.db, "")
	start, end := dbtest.Period(time.Now().Add(-time.Hour))
	dbtest.CreateSubscription(t, h.db, acc.ID, models.PlanTierStarter, start, end)

	status, body := h.do(t, "POST", "/api/v1/billing/checkout/subscription", acc.ID, map[string]string{"plan": "pro"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "invalid_state", body["error"])
	assert.Equal(t, "already_subscribed", body["reason"])
	assert.Equal(t, "/api/v1/billing/portal", body["manage_url"])
}

func signedWebhook(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func stripeEvent(t *testing.T, id, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"api_version": "2024-06-20",
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return b
}

func TestStripeWebhookResponses(t *testing.T) {
	h := newHarness(t)
	acc := dbtest.CreateAccount(t, h.db, "cus_hook")
	start, end := dbtest.Period(time.Now().Add(-time.Hour))
	dbtest.CreateSubscription(t, h.db, acc.ID, models.PlanTierStarter, start, end)

	payload := stripeEvent(t, "evt_ignored", "customer.created", map[string]interface{}{"id": "cus_hook", "object": "customer"})

	status, body := h.send(t, signedWebhook(t, payload, "whsec_wrong"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", body["error"])

	status, body = h.send(t, signedWebhook(t, payload, webhookSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ignored"])
	assert.Equal(t, false, body["duplicate"])

	status, body = h.send(t, signedWebhook(t, payload, webhookSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	second := map[string]interface{}{
		"id":                   "sub_second",
		"object":               "subscription",
		"customer":             "cus_hook",
		"status":               "active",
		"current_period_start": start.Unix(),
		"current_period_end":   end.Unix(),
		"metadata":             map[string]interface{}{"account_id": strconv.FormatUint(uint64(acc.ID), 10)},
	}
	status, _ = h.send(t, signedWebhook(t, stripeEvent(t, "evt_second", "customer.subscription.created", second), webhookSecret))
	assert.Equal(t, fiber.StatusInternalServerError, status)

	var stored models.BillingWebhookEvent
	require.NoError(t, h.db.Where("provider_event_id = ?", "evt_second").First(&stored).Error)
	assert.NotEmpty(t, stored.ProcessingError)
}
