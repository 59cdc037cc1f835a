package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiliankoe/georacer/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS game_objects (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    image_b64  TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates the game_objects table if needed.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create game_objects: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Add(ctx context.Context, name, image string) (game.GameObject, error) {
	name, image, err := validate(name, image)
	if err != nil {
		return game.GameObject{}, err
	}
	obj := game.GameObject{ID: uuid.NewString(), Name: name, ImageB64: image}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO game_objects (id, name, image_b64) VALUES ($1, $2, $3)`,
		obj.ID, obj.Name, obj.ImageB64,
	)
	if err != nil {
		return game.GameObject{}, fmt.Errorf("insert game object: %w", err)
	}
	return obj, nil
}

func (p *Postgres) Sample(ctx context.Context) (game.GameObject, error) {
	var (
		obj game.GameObject
		id  uuid.UUID
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, image_b64 FROM game_objects ORDER BY random() LIMIT 1`,
	).Scan(&id, &obj.Name, &obj.ImageB64)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.GameObject{}, game.ErrNoObjects
	}
	if err != nil {
		return game.GameObject{}, fmt.Errorf("sample game object: %w", err)
	}
	obj.ID = id.String()
	return obj, nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM game_objects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count game objects: %w", err)
	}
	return n, nil
}
