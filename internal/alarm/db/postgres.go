package db

import (
	"context"
	"errors"

	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/Raimguzhinov/alarmd/pkg/postgres"
	"github.com/jackc/pgx/v5"
)

type pgStore struct {
	client *postgres.Postgres
	logger *logger.Logger
}

func NewPostgres(client *postgres.Postgres, l *logger.Logger) Store {
	return &pgStore{
		client: client,
		logger: l,
	}
}

// Migrate creates the records table when it does not exist yet.
func Migrate(ctx context.Context, client *postgres.Postgres) error {
	if _, err := client.Pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS alarmd`); err != nil {
		return postgres.ToPgErr(err)
	}
	_, err := client.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS alarmd.records
		(
			namespace  TEXT        NOT NULL,
			key        TEXT        NOT NULL,
			value      BYTEA       NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, key)
		)
	`)
	return postgres.ToPgErr(err)
}

func (r *pgStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	r.logger.Debug("postgres.Get", "namespace", ns, "key", key)

	var value []byte

	err := r.client.Pool.QueryRow(ctx, `
		SELECT
			value
		FROM
			alarmd.records
		WHERE
			namespace = $1 AND key = $2
	`, string(ns), key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		err = postgres.ToPgErr(err)
		r.logger.Error("postgres.Get", logger.Err(err))
		return nil, err
	}
	return value, nil
}

func (r *pgStore) Put(ctx context.Context, ns Namespace, key string, value []byte) error {
	r.logger.Debug("postgres.Put", "namespace", ns, "key", key)

	_, err := r.client.Pool.Exec(ctx, `
		INSERT INTO alarmd.records
			(namespace, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
	`, string(ns), key, value)
	if err != nil {
		err = postgres.ToPgErr(err)
		r.logger.Error("postgres.Put", logger.Err(err))
		return err
	}
	return nil
}

func (r *pgStore) Delete(ctx context.Context, ns Namespace, key string) error {
	r.logger.Debug("postgres.Delete", "namespace", ns, "key", key)

	_, err := r.client.Pool.Exec(ctx, `
		DELETE FROM alarmd.records
		WHERE namespace = $1 AND key = $2
	`, string(ns), key)
	if err != nil {
		err = postgres.ToPgErr(err)
		r.logger.Error("postgres.Delete", logger.Err(err))
		return err
	}
	return nil
}

func (r *pgStore) List(ctx context.Context, ns Namespace) ([][]byte, error) {
	r.logger.Debug("postgres.List", "namespace", ns)

	rows, err := r.client.Pool.Query(ctx, `
		SELECT
			value
		FROM
			alarmd.records
		WHERE
			namespace = $1
		ORDER BY
			key
	`, string(ns))
	if err != nil {
		err = postgres.ToPgErr(err)
		r.logger.Error("postgres.List", logger.Err(err))
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var value []byte
		if err = rows.Scan(&value); err != nil {
			err = postgres.ToPgErr(err)
			r.logger.Error("postgres.List", logger.Err(err))
			return nil, err
		}
		out = append(out, value)
	}
	if err = rows.Err(); err != nil {
		return nil, postgres.ToPgErr(err)
	}
	return out, nil
}

func (r *pgStore) Close() error {
	r.client.Close()
	return nil
}
