package billing

import (
	"strings"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/entitlements"
)

const recurringSuffix = "_recurring"

// ResolvePlanTier picks the subscription tier from the plan tag on the price,
// then the plan tag on the subscription, defaulting to starter.
func ResolvePlanTier(priceTags []string, subscriptionTag string) entitlements.Plan {
	for _, raw := range priceTags {
		tag := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), recurringSuffix)
		if entitlements.IsSubscribable(tag) {
			return entitlements.NormalizePlan(tag)
		}
	}
	tag := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(subscriptionTag)), recurringSuffix)
	if entitlements.IsSubscribable(tag) {
		return entitlements.NormalizePlan(tag)
	}
	return entitlements.PlanStarter
}

func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return "incomplete"
	}
	return s
}
