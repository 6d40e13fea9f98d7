// Package presence tracks which agents are registered and whether they are
// still alive.
//
// Liveness is an explicit LastSeen timestamp refreshed by registration and
// heartbeats, compared against a configurable staleness window. The Registry
// holds that policy; a Store only persists records.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// ErrNotFound is returned by Store.Get for unknown IDs.
var ErrNotFound = errors.New("presence: agent not found")

// Store persists agent records keyed by ID. Implementations need no locking
// beyond per-record upserts: IDs are unique by construction.
type Store interface {
	// Insert adds a new record.
	Insert(ctx context.Context, agent *models.Agent) error

	// Touch sets LastSeen (and Status, when non-nil) on an existing record.
	// It reports false without error when the ID is unknown.
	Touch(ctx context.Context, id string, seen time.Time, status *string) (bool, error)

	// Delete removes a record. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Agent, error)

	// All returns every record in insertion order.
	All(ctx context.Context) ([]models.Agent, error)
}
