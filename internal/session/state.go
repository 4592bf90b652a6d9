package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/catalog"
	"github.com/vtranslate/storefront/internal/models"
)

// State is the typed view of one session's records. All reads validate
// the stored JSON and report problems as *apperr.StateError.
type State struct {
	store     Store
	sessionID string
}

func NewState(store Store, sessionID string) *State {
	return &State{store: store, sessionID: sessionID}
}

func (s *State) SelectedPlan(ctx context.Context) (*models.SelectedPlan, error) {
	var plan models.SelectedPlan
	if err := s.read(ctx, KeySelectedPlan, &plan); err != nil {
		return nil, err
	}
	if err := validatePlan(plan); err != nil {
		return nil, &apperr.StateError{Key: string(KeySelectedPlan), Reason: apperr.ReasonMalformed, Err: err}
	}
	return &plan, nil
}

func (s *State) SetSelectedPlan(ctx context.Context, plan models.SelectedPlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	return s.write(ctx, KeySelectedPlan, plan)
}

func (s *State) CurrentUser(ctx context.Context) (*models.CurrentUser, error) {
	var user models.CurrentUser
	if err := s.read(ctx, KeyCurrentUser, &user); err != nil {
		return nil, err
	}
	if err := validateUser(user); err != nil {
		return nil, &apperr.StateError{Key: string(KeyCurrentUser), Reason: apperr.ReasonMalformed, Err: err}
	}
	return &user, nil
}

func (s *State) SetCurrentUser(ctx context.Context, user models.CurrentUser) error {
	if err := validateUser(user); err != nil {
		return err
	}
	return s.write(ctx, KeyCurrentUser, user)
}

func (s *State) ClearCurrentUser(ctx context.Context) error {
	return s.store.Remove(ctx, s.sessionID, KeyCurrentUser)
}

func (s *State) read(ctx context.Context, key Key, v any) error {
	data, err := s.store.Get(ctx, s.sessionID, key)
	if errors.Is(err, ErrNotFound) {
		return &apperr.StateError{Key: string(key), Reason: apperr.ReasonMissing, Err: err}
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &apperr.StateError{Key: string(key), Reason: apperr.ReasonMalformed, Err: err}
	}
	return nil
}

func (s *State) write(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.store.Set(ctx, s.sessionID, key, data)
}

func validatePlan(plan models.SelectedPlan) error {
	if _, ok := catalog.Lookup(plan.ID); !ok {
		return apperr.Validation("id", "unknown plan "+string(plan.ID))
	}
	if math.IsNaN(plan.Price) || math.IsInf(plan.Price, 0) || plan.Price <= 0 {
		return apperr.Validation("price", "price must be positive")
	}
	return nil
}

func validateUser(user models.CurrentUser) error {
	if strings.TrimSpace(user.Email) == "" {
		return apperr.Validation("email", "email is required")
	}
	if !user.Provider.Valid() {
		return apperr.Validation("provider", "unsupported provider "+string(user.Provider))
	}
	return nil
}
