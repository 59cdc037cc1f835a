package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/kiliankoe/georacer/internal/game"
)

var ErrInvalidObject = errors.New("object needs a name and an image")

// Catalog stores the objects players are sent to find.
type Catalog interface {
	game.Catalog
	Add(ctx context.Context, name, image string) (game.GameObject, error)
	Count(ctx context.Context) (int, error)
}

func validate(name, image string) (string, string, error) {
	name, image = strings.TrimSpace(name), strings.TrimSpace(image)
	if name == "" || image == "" {
		return "", "", ErrInvalidObject
	}
	return name, image, nil
}
