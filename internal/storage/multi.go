package storage

import (
	"context"
	"errors"

	"miniSwap/internal/model"
)

type multi []Storage

// Multi fans a batch out to every sink and joins their errors.
func Multi(sinks ...Storage) Storage {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return multi(sinks)
}

func (m multi) PutTransitionBatch(ctx context.Context, transitions []model.Transition) error {
	var errs []error
	for _, s := range m {
		if err := s.PutTransitionBatch(ctx, transitions); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
