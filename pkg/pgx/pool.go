package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Pool represents a connection configuration.
type Pool struct {
	Config     *pgxpool.Config // Takes precedence over ConnString
	ConnString string          // Used if Config is nil
	// Vector registers the pgvector types on every connection. The extension itself is not created.
	Vector bool
}

var ErrNoConnConfig = errors.New("either Config or ConnString must be provided")

// NormalizeConnString rewrites SQLAlchemy-style URIs (postgresql+psycopg2://...) into ones pgx accepts.
func NormalizeConnString(connString string) string {
	scheme, rest, ok := strings.Cut(connString, "://")
	if !ok {
		return connString
	}
	if driver, _, found := strings.Cut(scheme, "+"); found {
		return driver + "://" + rest
	}
	return connString
}

// NewPool creates a *pgxpool.Pool and pings it.
func NewPool(ctx context.Context, cfg Pool) (*pgxpool.Pool, error) {
	poolConfig := cfg.Config
	if poolConfig == nil {
		if cfg.ConnString == "" {
			return nil, ErrNoConnConfig
		}
		var err error
		poolConfig, err = pgxpool.ParseConfig(NormalizeConnString(cfg.ConnString))
		if err != nil {
			return nil, fmt.Errorf("parsing connection string: %w", err)
		}
	}

	if cfg.Vector {
		afterConnect := poolConfig.AfterConnect
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if afterConnect != nil {
				if err := afterConnect(ctx, conn); err != nil {
					return err
				}
			}
			return RegisterVector(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping connection: %w", err)
	}

	return pool, nil
}

// RegisterVector registers the pgvector types on conn. It only reads the catalog: while the
// extension does not exist yet it registers nothing, and pgvector values are sent in their
// text form until a later connection finds the type.
func RegisterVector(ctx context.Context, conn *pgx.Conn) error {
	var installed bool
	if err := conn.QueryRow(ctx, "SELECT to_regtype('vector') IS NOT NULL").Scan(&installed); err != nil {
		return fmt.Errorf("failed to look up vector type: %w", err)
	}
	if !installed {
		return nil
	}
	if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
		return fmt.Errorf("failed to register vector types: %w", err)
	}
	return nil
}
