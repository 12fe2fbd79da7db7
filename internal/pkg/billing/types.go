package billing

import "time"

// NormalizedSubscription is the processor-agnostic shape used when syncing
// external subscription state into the subscriptions table.
type NormalizedSubscription struct {
	AccountID            uint
	StripeSubscriptionID string
	StripeCustomerID     string
	PlanTier             string
	Status               string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}

// WebhookResult reports what HandleWebhook did with a delivery.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
}

// ReplaySummary counts the outcome of a ReplayFailed run.
type ReplaySummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
