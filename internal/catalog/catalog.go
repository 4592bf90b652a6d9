// Package catalog holds the static list of purchasable plans.
package catalog

import (
	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/models"
)

// features is the single plan-to-features table used by every view.
var features = map[models.PlanID][]string{
	models.PlanBasic: {
		"Up to 1,000 translations per month",
		"Access to 50+ languages",
		"Basic support",
		"No ads",
	},
	models.PlanPro: {
		"Unlimited translations",
		"Access to all languages",
		"Priority support",
		"No ads",
		"API access",
		"Custom terminology",
	},
	models.PlanEnterprise: {
		"Everything in Professional",
		"Dedicated account manager",
		"Custom AI model training",
		"Advanced analytics",
		"SLA guarantee",
		"Team collaboration tools",
	},
}

var plans = []models.Plan{
	{ID: models.PlanBasic, Name: "Basic", Price: 9.99},
	{ID: models.PlanPro, Name: "Professional", Price: 19.99, Popular: true},
	{ID: models.PlanEnterprise, Name: "Enterprise", Price: 49.99},
}

// Plans returns the catalog in display order. The result is a copy.
func Plans() []models.Plan {
	out := make([]models.Plan, 0, len(plans))
	for _, p := range plans {
		p.Features = Features(p.ID)
		out = append(out, p)
	}
	return out
}

func Lookup(id models.PlanID) (models.Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			p.Features = Features(id)
			return p, true
		}
	}
	return models.Plan{}, false
}

// Features returns the feature list for id, or nil for an unknown id.
func Features(id models.PlanID) []string {
	list, ok := features[id]
	if !ok {
		return nil
	}
	return append([]string(nil), list...)
}

// Select builds the session record for a plan picked on the pricing view.
func Select(id models.PlanID) (models.SelectedPlan, error) {
	p, ok := Lookup(id)
	if !ok {
		return models.SelectedPlan{}, apperr.Validation("planId", "Unknown plan: "+string(id))
	}
	return models.SelectedPlan{ID: p.ID, Name: p.Name, Price: p.Price}, nil
}
