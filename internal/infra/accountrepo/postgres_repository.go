package accountrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/shim-server/internal/domain/shim"
)

const schema = `
CREATE TABLE IF NOT EXISTS shim_accounts (
	shim_key              TEXT        NOT NULL,
	username              TEXT        NOT NULL,
	scheme                TEXT        NOT NULL,
	access_token          TEXT        NOT NULL,
	token_secret          TEXT        NOT NULL DEFAULT '',
	refresh_token         TEXT        NOT NULL DEFAULT '',
	expires_at            TIMESTAMPTZ,
	additional_parameters JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (shim_key, username)
)`

const selectColumns = `shim_key, username, scheme, access_token, token_secret, refresh_token,
	expires_at, additional_parameters, created_at, updated_at`

// PostgresRepository persists access parameters in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the shim_accounts table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, shimKey, username string) (shim.AccessParameters, bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM shim_accounts
		WHERE shim_key = $1 AND username = $2
		LIMIT 1
	`, shimKey, username)
	if err != nil {
		return shim.AccessParameters{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return shim.AccessParameters{}, false, rows.Err()
	}
	params, err := scanAccount(rows)
	if err != nil {
		return shim.AccessParameters{}, false, err
	}
	return params, true, rows.Err()
}

// Save upserts the account keyed by (shim_key, username).
func (r *PostgresRepository) Save(ctx context.Context, params shim.AccessParameters) (shim.AccessParameters, error) {
	additional := params.AdditionalParameters
	if additional == nil {
		additional = map[string]string{}
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO shim_accounts (shim_key, username, scheme, access_token, token_secret, refresh_token, expires_at, additional_parameters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (shim_key, username) DO UPDATE SET
			scheme = EXCLUDED.scheme,
			access_token = EXCLUDED.access_token,
			token_secret = EXCLUDED.token_secret,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			additional_parameters = EXCLUDED.additional_parameters,
			updated_at = now()
		RETURNING `+selectColumns,
		params.ShimKey, params.Username, string(params.Scheme), params.AccessToken, params.TokenSecret,
		params.RefreshToken, params.ExpiresAt, additional,
	)
	return scanAccount(row)
}

func (r *PostgresRepository) Delete(ctx context.Context, shimKey, username string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shim_accounts WHERE shim_key = $1 AND username = $2`, shimKey, username)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]shim.AccessParameters, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM shim_accounts
		ORDER BY shim_key, username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shim.AccessParameters
	for rows.Next() {
		params, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, params)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (shim.AccessParameters, error) {
	var (
		params     shim.AccessParameters
		scheme     string
		expiresAt  *time.Time
		additional map[string]string
		created    time.Time
		updated    time.Time
	)
	if err := row.Scan(
		&params.ShimKey,
		&params.Username,
		&scheme,
		&params.AccessToken,
		&params.TokenSecret,
		&params.RefreshToken,
		&expiresAt,
		&additional,
		&created,
		&updated,
	); err != nil {
		return shim.AccessParameters{}, err
	}
	params.Scheme = shim.Scheme(scheme)
	if expiresAt != nil {
		utc := expiresAt.UTC()
		params.ExpiresAt = &utc
	}
	if len(additional) > 0 {
		params.AdditionalParameters = additional
	}
	params.CreatedAt = created.UTC()
	params.UpdatedAt = updated.UTC()
	return params, nil
}

var _ shim.Repository = (*PostgresRepository)(nil)
