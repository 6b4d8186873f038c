package storage

import (
	"context"

	"miniSwap/internal/model"
)

// Storage defines a sink for action transitions.
type Storage interface {
	PutTransitionBatch(ctx context.Context, transitions []model.Transition) error
}
