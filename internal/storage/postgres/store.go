package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"miniSwap/internal/model"
	"miniSwap/internal/units"
)

const schema = `
CREATE TABLE IF NOT EXISTS action_transitions (
	id          BIGSERIAL PRIMARY KEY,
	action_id   BIGINT      NOT NULL,
	kind        TEXT        NOT NULL,
	from_state  TEXT        NOT NULL,
	to_state    TEXT        NOT NULL,
	account     TEXT        NOT NULL,
	tx_hash     TEXT,
	error       TEXT,
	at          TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS action_transitions_action_idx ON action_transitions (action_id);

CREATE TABLE IF NOT EXISTS pool_snapshots (
	pool_address  TEXT        NOT NULL,
	caller        TEXT        NOT NULL,
	block_number  BIGINT      NOT NULL,
	reserve0      NUMERIC(78) NOT NULL,
	reserve1      NUMERIC(78) NOT NULL,
	total_shares  NUMERIC(78) NOT NULL,
	caller_shares NUMERIC(78) NOT NULL,
	loaded_at     TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_address, caller)
);
`

// Store provides Postgres persistence for the action journal and pool snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PutTransitionBatch inserts action transitions.
func (s *Store) PutTransitionBatch(ctx context.Context, transitions []model.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range transitions {
		at, err := time.Parse(time.RFC3339Nano, t.At)
		if err != nil {
			return fmt.Errorf("transition %d at: %w", t.ActionID, err)
		}
		batch.Queue(`
			INSERT INTO action_transitions (
				action_id, kind, from_state, to_state, account, tx_hash, error, at
			) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		`,
			int64(t.ActionID),
			string(t.Kind),
			string(t.From),
			string(t.To),
			t.Account,
			t.TxHash,
			t.Error,
			at,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range transitions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutSnapshot upserts the latest snapshot per (pool, caller). Older blocks never
// overwrite newer ones.
func (s *Store) PutSnapshot(ctx context.Context, snap model.PoolSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (
			pool_address, caller, block_number, reserve0, reserve1, total_shares, caller_shares, loaded_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, now())
		ON CONFLICT (pool_address, caller)
		DO UPDATE SET
			block_number = EXCLUDED.block_number,
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			total_shares = EXCLUDED.total_shares,
			caller_shares = EXCLUDED.caller_shares,
			loaded_at = EXCLUDED.loaded_at,
			updated_at = now()
		WHERE pool_snapshots.block_number <= EXCLUDED.block_number
	`,
		snap.Pool,
		snap.Caller,
		int64(snap.Block),
		snap.Reserve0.String(),
		snap.Reserve1.String(),
		snap.TotalShares.String(),
		snap.CallerShares.String(),
		snap.LoadedAt,
	)
	return err
}

// LatestSnapshot returns the stored snapshot for (pool, caller).
func (s *Store) LatestSnapshot(ctx context.Context, pool, caller string) (model.PoolSnapshot, bool, error) {
	if pool == "" {
		return model.PoolSnapshot{}, false, fmt.Errorf("pool address required")
	}
	var (
		block                                   int64
		reserve0, reserve1, total, callerShares string
		loadedAt                                time.Time
	)
	row := s.pool.QueryRow(ctx, `
		SELECT block_number, reserve0::text, reserve1::text, total_shares::text, caller_shares::text, loaded_at
		FROM pool_snapshots WHERE pool_address=$1 AND caller=$2
	`, pool, caller)
	if err := row.Scan(&block, &reserve0, &reserve1, &total, &callerShares, &loadedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, err
	}

	snap := model.PoolSnapshot{Pool: pool, Caller: caller, Block: uint64(block), LoadedAt: loadedAt}
	for _, f := range []struct {
		dst *units.Amount
		raw string
	}{
		{&snap.Reserve0, reserve0},
		{&snap.Reserve1, reserve1},
		{&snap.TotalShares, total},
		{&snap.CallerShares, callerShares},
	} {
		v, err := units.FromString(f.raw)
		if err != nil {
			return model.PoolSnapshot{}, false, fmt.Errorf("parse stored amount %q: %w", f.raw, err)
		}
		*f.dst = v
	}
	return snap, true, nil
}
