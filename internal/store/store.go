package store

import (
	"context"
	"errors"

	"github.com/kiliankoe/georacer/internal/game"
)

var ErrNotFound = errors.New("snapshot not found")

// Fanout writes every snapshot to all of its stores. One failing store does not keep
// the others from being written.
type Fanout []game.SnapshotStore

func (f Fanout) Put(ctx context.Context, id string, snap game.Snapshot) error {
	var errs []error
	for _, s := range f {
		if err := s.Put(ctx, id, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
