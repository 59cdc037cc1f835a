package store

import (
	"context"
	"sync"

	"github.com/kiliankoe/georacer/internal/game"
)

type Memory struct {
	mu    sync.RWMutex
	snaps map[string]game.Snapshot
}

func NewMemory() *Memory {
	return &Memory{snaps: make(map[string]game.Snapshot)}
}

func (m *Memory) Put(_ context.Context, id string, snap game.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[id] = snap
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (game.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[id]
	if !ok {
		return game.Snapshot{}, ErrNotFound
	}
	return snap, nil
}
