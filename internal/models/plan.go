package models

type PlanID string

const (
	PlanBasic      PlanID = "basic"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// Plan is a purchasable catalog entry. Price is in dollars.
type Plan struct {
	ID       PlanID   `json:"id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Features []string `json:"features"`
	Popular  bool     `json:"popular,omitempty"`
}

// SelectedPlan is the record stored under the selectedPlan session key.
type SelectedPlan struct {
	ID    PlanID  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}
