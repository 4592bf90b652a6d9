package checkout

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/catalog"
	"github.com/vtranslate/storefront/internal/models"
)

const selectedPlanKey = "selectedPlan"

// idempotencyNamespace scopes the name-based UUIDs used as processor idempotency keys.
var idempotencyNamespace = uuid.MustParse("5c1f0a8e-3b7d-4e2a-9c61-0d4f8b2e7a13")

// ComputeAmount converts a plan price in dollars to cents.
func ComputeAmount(plan models.SelectedPlan) (int64, error) {
	if _, ok := catalog.Lookup(plan.ID); !ok {
		return 0, &apperr.StateError{
			Key:    selectedPlanKey,
			Reason: apperr.ReasonMalformed,
			Err:    fmt.Errorf("unknown plan %q", plan.ID),
		}
	}

	cents := math.Round(plan.Price * 100)
	if math.IsNaN(cents) || math.IsInf(cents, 0) || cents <= 0 || cents >= math.MaxInt64 {
		return 0, &apperr.StateError{
			Key:    selectedPlanKey,
			Reason: apperr.ReasonMalformed,
			Err:    fmt.Errorf("invalid price %v for plan %q", plan.Price, plan.ID),
		}
	}
	return int64(cents), nil
}

// IdempotencyKey derives the processor idempotency key for one checkout attempt.
// The same session, plan, amount and attempt always map to the same key.
func IdempotencyKey(sessionID string, planID models.PlanID, amount int64, attempt uuid.UUID) string {
	name := fmt.Sprintf("%s:%s:%d:%s", sessionID, planID, amount, attempt)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}
