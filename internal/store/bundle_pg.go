package store

import (
	"context"
	"errors"

	"assetrelay/internal/asset"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BundlePG struct {
	db *pgxpool.Pool
}

func NewBundlePG(db *pgxpool.Pool) *BundlePG {
	return &BundlePG{db: db}
}

func (r *BundlePG) Get(ctx context.Context, key string) (asset.Entry, bool, error) {
	const query = `SELECT payload::text, updated_at FROM asset_bundles WHERE user_id = $1`

	var (
		payload string
		entry   asset.Entry
	)
	err := r.db.QueryRow(ctx, query, key).Scan(&payload, &entry.ModTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return asset.Entry{}, false, nil
	}
	if err != nil {
		return asset.Entry{}, false, err
	}
	entry.Data = []byte(payload)
	return entry, true, nil
}

func (r *BundlePG) Put(ctx context.Context, key string, data []byte) error {
	const query = `
	INSERT INTO asset_bundles (user_id, payload, updated_at)
	VALUES ($1, $2::jsonb, now())
	ON CONFLICT (user_id) DO UPDATE
	SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, key, string(data))
	return err
}

func (r *BundlePG) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
