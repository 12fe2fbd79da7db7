package usercontext

import "github.com/gofiber/fiber/v2"

// AccountContext represents the authenticated caller for a request
type AccountContext struct {
	AccountID        uint   `json:"account_id"`
	Email            string `json:"email"`
	StripeCustomerID string `json:"stripe_customer_id,omitempty"`
	APIKeyPrefix     string `json:"api_key_prefix"`
	IsAuthenticated  bool   `json:"is_authenticated"`
}

// Set stores the account context and the legacy scalar locals.
func Set(c *fiber.Ctx, ac AccountContext) {
	c.Locals(KeyAccountContext, ac)
	c.Locals(KeyAccountID, ac.AccountID)
	c.Locals(KeyAuthenticated, ac.IsAuthenticated)
}

// GetAccountContext retrieves the account context from fiber context
// Returns an anonymous context if none is set
func GetAccountContext(c *fiber.Ctx) AccountContext {
	if ctx, ok := c.Locals(KeyAccountContext).(AccountContext); ok {
		return ctx
	}
	return AccountContext{}
}

// IsAuthenticated checks if the request carried a valid API key
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetAccountContext(c).IsAuthenticated
}

// GetAccountID returns the caller's account ID, or 0 if anonymous
func GetAccountID(c *fiber.Ctx) uint {
	return GetAccountContext(c).AccountID
}
