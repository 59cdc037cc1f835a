package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/kiliankoe/georacer/internal/game"
)

func TestMemoryEmpty(t *testing.T) {
	m := NewMemory()
	if _, err := m.Sample(context.Background()); !errors.Is(err, game.ErrNoObjects) {
		t.Fatalf("expected ErrNoObjects, got %v", err)
	}
}

func TestMemoryAddAndSample(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	obj, err := m.Add(ctx, "  Red mug ", "data:image/png;base64,AAAA")
	if err != nil {
		t.Fatalf("should be able to add object: %v", err)
	}
	if obj.ID == "" || obj.Name != "Red mug" {
		t.Fatalf("unexpected object: %+v", obj)
	}
	if n, _ := m.Count(ctx); n != 1 {
		t.Fatalf("expected 1 object, got %d", n)
	}

	got, err := m.Sample(ctx)
	if err != nil {
		t.Fatalf("should be able to sample: %v", err)
	}
	if got != obj {
		t.Fatalf("expected %+v, got %+v", obj, got)
	}
}

func TestMemoryRejectsIncompleteObjects(t *testing.T) {
	m := NewMemory()
	for _, c := range [][2]string{{"", "AAAA"}, {"Mug", ""}, {"  ", "AAAA"}} {
		if _, err := m.Add(context.Background(), c[0], c[1]); !errors.Is(err, ErrInvalidObject) {
			t.Fatalf("expected ErrInvalidObject for %q, got %v", c, err)
		}
	}
}

func TestMemorySamplesEveryObject(t *testing.T) {
	m := NewMemory(
		game.GameObject{ID: "1", Name: "Mug"},
		game.GameObject{ID: "2", Name: "Plant"},
		game.GameObject{ID: "3", Name: "Lamp"},
	)
	seen := map[string]bool{}
	for i := 0; i < 300 && len(seen) < 3; i++ {
		obj, _ := m.Sample(context.Background())
		seen[obj.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("sampling should reach every object, saw %v", seen)
	}
}
