// Package session implements the per-browser key-value state carried across page loads.
package session

import (
	"context"
	"errors"
)

type Key string

const (
	KeySelectedPlan Key = "selectedPlan"
	KeyCurrentUser  Key = "currentUser"
)

var ErrNotFound = errors.New("session key not found")

// Store is a last-write-wins key-value store scoped by session id.
type Store interface {
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, sessionID string, key Key) ([]byte, error)
	Set(ctx context.Context, sessionID string, key Key, value []byte) error
	Remove(ctx context.Context, sessionID string, key Key) error
}
