package backlog

import (
	"context"
	"errors"
)

// CapacityLimit is the fixed per-collection entry ceiling. It gates new
// creation only; existing oversized collections are never trimmed and
// migration is never blocked by it.
const CapacityLimit = 100

// ErrCollectionFull is the user-facing, non-fatal rejection raised when a
// creation would exceed the capacity limit.
var ErrCollectionFull = errors.New("backlog: collection is full")

// WithCapacity wraps a store so that Add is rejected once the collection
// holds limit entries.
func WithCapacity(store Store, limit int) Store {
	if limit <= 0 {
		limit = CapacityLimit
	}
	return &capacityStore{Store: store, limit: limit}
}

type capacityStore struct {
	Store
	limit int
}

func (s *capacityStore) Add(ctx context.Context, entry NewEntry) (Entry, error) {
	count, err := s.Store.Count(ctx)
	if err != nil {
		return Entry{}, err
	}
	if count >= s.limit {
		return Entry{}, ErrCollectionFull
	}
	return s.Store.Add(ctx, entry)
}
