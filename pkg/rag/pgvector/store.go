/*
Package pgvector implements rag.VectorStore on PostgreSQL with the pgvector extension.

Records are kept in the two-table layout used by LangChain's PGVector store, so
collections written by either implementation can be read by the other:

	langchain_pg_collection (uuid, name, cmetadata)
	langchain_pg_embedding  (id, collection_id, embedding, document, cmetadata)
*/
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	pgxutil "github.com/edgeflare/pgrag/pkg/pgx"
	"github.com/edgeflare/pgrag/pkg/rag"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

var _ rag.VectorStore = (*Store)(nil)

const (
	CollectionTable = "langchain_pg_collection"
	EmbeddingTable  = "langchain_pg_embedding"
)

// undefined_table, raised when searching before anything was ever ingested
const pgUndefinedTable = "42P01"

var schemaStatements = []string{
	"CREATE EXTENSION IF NOT EXISTS vector",
	`CREATE TABLE IF NOT EXISTS ` + CollectionTable + ` (
		uuid UUID PRIMARY KEY,
		name VARCHAR NOT NULL UNIQUE,
		cmetadata JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS ` + EmbeddingTable + ` (
		id VARCHAR PRIMARY KEY,
		collection_id UUID REFERENCES ` + CollectionTable + `(uuid) ON DELETE CASCADE,
		embedding VECTOR,
		document VARCHAR,
		cmetadata JSONB
	)`,
}

var deleteSourceQuery = fmt.Sprintf(`
	DELETE FROM %s e
	USING %s c
	WHERE e.collection_id = c.uuid AND c.name = $1 AND e.cmetadata->>'source' = $2`,
	EmbeddingTable, CollectionTable)

// Store is a pgvector-backed vector store
type Store struct {
	conn   pgxutil.Conn
	logger *zap.Logger
}

// New wraps an existing connection or pool
func New(conn pgxutil.Conn, loggers ...*zap.Logger) *Store {
	logger := zap.NewNop()
	if len(loggers) > 0 && loggers[0] != nil {
		logger = loggers[0]
	}
	return &Store{conn: conn, logger: logger}
}

// Open connects to connString and returns a Store backed by a pool. Callers must close the pool.
// Connection failures wrap rag.ErrConnection.
func Open(ctx context.Context, connString string, loggers ...*zap.Logger) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxutil.NewPool(ctx, pgxutil.Pool{ConnString: connString, Vector: true})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", rag.ErrConnection, err)
	}
	return New(pool, loggers...), pool, nil
}

// EnsureSchema creates the extension and tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", classify(err))
		}
	}
	return nil
}

// Add inserts records in one transaction, creating the schema and the collection if needed.
// Every record gets a new UUID; nothing is deduplicated.
func (s *Store) Add(ctx context.Context, collection string, records []rag.Record) ([]string, error) {
	var ids []string
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		ids, err = s.add(ctx, tx, collection, records)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Records added", zap.String("collection", collection), zap.Int("records", len(ids)))
	return ids, nil
}

// Replace deletes the records of sources and inserts records in the same transaction.
// If any statement fails the transaction is rolled back and the previous records are kept.
func (s *Store) Replace(ctx context.Context, collection string, sources []string, records []rag.Record) (int64, []string, error) {
	var (
		deleted int64
		ids     []string
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, source := range sources {
			tag, err := tx.Exec(ctx, deleteSourceQuery, collection, source)
			if err != nil {
				return fmt.Errorf("failed to delete records of %s: %w", source, classify(err))
			}
			deleted += tag.RowsAffected()
		}

		var err error
		ids, err = s.add(ctx, tx, collection, records)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	s.logger.Debug("Records replaced", zap.String("collection", collection),
		zap.Int64("deleted", deleted), zap.Int("records", len(ids)))
	return deleted, ids, nil
}

// inTx ensures the schema, then runs fn in a transaction that is committed only if fn succeeds
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit records: %w", classify(err))
	}
	return nil
}

func (s *Store) add(ctx context.Context, tx pgx.Tx, collection string, records []rag.Record) ([]string, error) {
	collectionID, err := s.ensureCollection(ctx, tx, collection)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (id, collection_id, embedding, document, cmetadata) VALUES ($1, $2, $3, $4, $5)",
		EmbeddingTable,
	)

	ids := make([]string, len(records))
	for i, r := range records {
		metadata, err := json.Marshal(r.Metadata.Map())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}

		id := uuid.NewString()
		if _, err := tx.Exec(ctx, query, id, collectionID, pgvector.NewVector(r.Vector), r.Text, metadata); err != nil {
			return nil, fmt.Errorf("failed to insert record %d: %w", i, classify(err))
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *Store) ensureCollection(ctx context.Context, tx pgx.Tx, collection string) (string, error) {
	_, err := tx.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (uuid, name, cmetadata) VALUES ($1, $2, '{}'::jsonb) ON CONFLICT (name) DO NOTHING", CollectionTable),
		uuid.NewString(), collection,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create collection %s: %w", collection, classify(err))
	}

	var id string
	err = tx.QueryRow(ctx, fmt.Sprintf("SELECT uuid::text FROM %s WHERE name = $1", CollectionTable), collection).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to look up collection %s: %w", collection, classify(err))
	}
	return id, nil
}

// Search returns the k records nearest to vector by cosine distance, most similar first.
// Score is the cosine similarity (1 - cosine distance).
func (s *Store) Search(ctx context.Context, collection string, vector []float32, k int) ([]rag.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", rag.ErrConfiguration, k)
	}

	var collectionID string
	err := s.conn.QueryRow(ctx, fmt.Sprintf("SELECT uuid::text FROM %s WHERE name = $1", CollectionTable), collection).Scan(&collectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, fmt.Errorf("%w: %s", rag.ErrCollectionNotFound, collection)
		}
		return nil, fmt.Errorf("failed to look up collection %s: %w", collection, classify(err))
	}

	query := fmt.Sprintf(`
		SELECT id, document, cmetadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE collection_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`, EmbeddingTable)

	rows, err := s.conn.Query(ctx, query, pgvector.NewVector(vector), collectionID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", classify(err))
	}
	defer rows.Close()

	var results []rag.SearchResult
	for rows.Next() {
		var (
			r        rag.SearchResult
			metadata []byte
		)
		if err := rows.Scan(&r.ID, &r.Text, &metadata, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if r.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", classify(err))
	}

	return results, nil
}

// DeleteSource deletes the records of collection whose metadata source equals source.
// A missing collection deletes nothing.
func (s *Store) DeleteSource(ctx context.Context, collection, source string) (int64, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	tag, err := s.conn.Exec(ctx, deleteSourceQuery, collection, source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records of %s: %w", source, classify(err))
	}
	return tag.RowsAffected(), nil
}

func decodeMetadata(raw []byte) (rag.Metadata, error) {
	if len(raw) == 0 {
		return rag.Metadata{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return rag.Metadata{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return rag.MetadataFromMap(m)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}

// classify marks errors caused by an unreachable database with rag.ErrConnection
func classify(err error) error {
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", rag.ErrConnection, err)
	}
	return err
}
