package entitlements

import (
	"strings"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
)

type Plan string

const (
	PlanStarter    Plan = models.PlanTierStarter
	PlanPro        Plan = models.PlanTierPro
	PlanEnterprise Plan = "enterprise"
)

// Verifications included per subscription period.
const (
	StarterPeriodLimit = 10
	ProPeriodLimit     = 50
)

// NormalizePlan maps a stored tier to a subscribable plan; anything unknown is starter.
func NormalizePlan(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanPro:
		return PlanPro
	default:
		return PlanStarter
	}
}

// PeriodLimit returns how many verifications a plan includes per billing period.
func PeriodLimit(plan Plan) int {
	switch plan {
	case PlanPro:
		return ProPeriodLimit
	default:
		return StarterPeriodLimit
	}
}

// NextPlan is the upgrade suggested when a plan's limit is reached.
func NextPlan(plan Plan) Plan {
	switch plan {
	case PlanStarter:
		return PlanPro
	default:
		return PlanEnterprise
	}
}

// IsSubscribable reports whether checkout can be started for the plan.
func IsSubscribable(plan string) bool {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanStarter, PlanPro:
		return true
	default:
		return false
	}
}
