package catalog

import (
	"context"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/kiliankoe/georacer/internal/game"
)

// Memory keeps the catalog in process. Used when no database is configured and in tests.
type Memory struct {
	mu      sync.RWMutex
	objects []game.GameObject
}

func NewMemory(objects ...game.GameObject) *Memory {
	return &Memory{objects: objects}
}

func (m *Memory) Add(_ context.Context, name, image string) (game.GameObject, error) {
	name, image, err := validate(name, image)
	if err != nil {
		return game.GameObject{}, err
	}
	obj := game.GameObject{ID: uuid.NewString(), Name: name, ImageB64: image}
	m.mu.Lock()
	m.objects = append(m.objects, obj)
	m.mu.Unlock()
	return obj, nil
}

func (m *Memory) Sample(_ context.Context) (game.GameObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.objects) == 0 {
		return game.GameObject{}, game.ErrNoObjects
	}
	return m.objects[rand.Intn(len(m.objects))], nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects), nil
}
