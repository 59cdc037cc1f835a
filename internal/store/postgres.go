package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiliankoe/georacer/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS lobby_snapshots (
    id         TEXT PRIMARY KEY,
    phase      TEXT NOT NULL,
    round      INTEGER NOT NULL,
    snapshot   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres keeps the latest snapshot of every lobby.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create lobby_snapshots: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Put(ctx context.Context, id string, snap game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
        INSERT INTO lobby_snapshots (id, phase, round, snapshot, updated_at)
        VALUES ($1, $2, $3, $4, now())
        ON CONFLICT (id) DO UPDATE
        SET phase = EXCLUDED.phase,
            round = EXCLUDED.round,
            snapshot = EXCLUDED.snapshot,
            updated_at = EXCLUDED.updated_at
    `, id, string(snap.Phase.Kind), snap.Round, data)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (game.Snapshot, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT snapshot FROM lobby_snapshots WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return game.Snapshot{}, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	var snap game.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return game.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return snap, nil
}
