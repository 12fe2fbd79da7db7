package billing

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/entitlements"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/env"
)

const (
	defaultOneTimePrice  = "49.00"
	defaultCurrency      = "usd"
	defaultMeterEvent    = "income_verification"
	defaultCheckoutLimit = 10
)

// Config is the billing configuration read once at startup.
type Config struct {
	SecretKey     string
	WebhookSecret string

	// Processor price ids per subscribable plan, plus the one-time credit price.
	PriceIDs         map[entitlements.Plan]string
	OneTimePriceID   string
	OneTimePrice     decimal.Decimal
	Currency         string
	MeterEventName   string
	SuccessURL       string
	CancelURL        string
	PortalReturnURL  string
	CheckoutLimit    int
	CheckoutWindow   time.Duration
	ReplayInterval   time.Duration
	ReplayBatchLimit int
}

// ConfigFromEnv assembles Config from the environment.
func ConfigFromEnv() Config {
	price, err := decimal.NewFromString(strings.TrimSpace(env.GetEnv("ONE_TIME_PRICE", defaultOneTimePrice)))
	if err != nil || !price.IsPositive() {
		log.Warnf("[Billing] invalid ONE_TIME_PRICE, falling back to %s", defaultOneTimePrice)
		price = decimal.RequireFromString(defaultOneTimePrice)
	}

	return Config{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		PriceIDs: map[entitlements.Plan]string{
			entitlements.PlanStarter: strings.TrimSpace(env.GetEnv("STRIPE_PRICE_STARTER", "")),
			entitlements.PlanPro:     strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PRO", "")),
		},
		OneTimePriceID:   strings.TrimSpace(env.GetEnv("STRIPE_PRICE_ONE_TIME", "")),
		OneTimePrice:     price,
		Currency:         strings.ToLower(strings.TrimSpace(env.GetEnv("BILLING_CURRENCY", defaultCurrency))),
		MeterEventName:   strings.TrimSpace(env.GetEnv("STRIPE_METER_EVENT", defaultMeterEvent)),
		SuccessURL:       strings.TrimSpace(env.GetEnv("CHECKOUT_SUCCESS_URL", "")),
		CancelURL:        strings.TrimSpace(env.GetEnv("CHECKOUT_CANCEL_URL", "")),
		PortalReturnURL:  strings.TrimSpace(env.GetEnv("PORTAL_RETURN_URL", "")),
		CheckoutLimit:    env.GetEnvInt("CHECKOUT_RATE_LIMIT", defaultCheckoutLimit),
		CheckoutWindow:   env.GetEnvDuration("CHECKOUT_RATE_WINDOW", time.Hour),
		ReplayInterval:   env.GetEnvDuration("WEBHOOK_REPLAY_INTERVAL", 10*time.Minute),
		ReplayBatchLimit: env.GetEnvInt("WEBHOOK_REPLAY_BATCH", 50),
	}
}

// OneTimePriceCents returns the pay-as-you-go price in minor units.
func (c Config) OneTimePriceCents() int64 {
	return c.OneTimePrice.Shift(2).Round(0).IntPart()
}

// FormattedOneTimePrice renders the price with two decimals, e.g. "49.00".
func (c Config) FormattedOneTimePrice() string {
	return c.OneTimePrice.StringFixed(2)
}

// PriceIDFor returns the subscription price for a plan, or "" when none is configured.
func (c Config) PriceIDFor(plan entitlements.Plan) string {
	if c.PriceIDs == nil {
		return ""
	}
	return c.PriceIDs[plan]
}
