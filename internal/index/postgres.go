package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/quarrylabs/quarry/internal/rag"
)

// Postgres is a rag.Index backed by PostgreSQL + pgvector.
//
// Similarity is cosine, computed as 1 - (embedding <=> query). The
// chunks table carries no approximate-nearest-neighbor index on the
// embedding column, so queries are exact sequential scans and results
// are deterministic for fixed input — same baseline as Memory, with
// durability. Writes take a transaction-scoped advisory lock per
// document ID, which serializes delete/upsert against the same document
// across processes while unrelated documents proceed concurrently.
//
// Postgres is safe for concurrent use by multiple goroutines.
type Postgres struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

// NewPostgres creates a Postgres index over an existing connection
// pool. The pool must have pgvector types registered (see
// database.NewPool) and the schema migrated (see db.Migrate). A nil
// logger falls back to slog.Default.
func NewPostgres(pool *pgxpool.Pool, dim int, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, dim: dim, logger: logger}
}

// Upsert writes chunks in a single transaction: the batch is
// all-or-nothing. Chunks with an existing ID are overwritten.
func (p *Postgres) Upsert(ctx context.Context, chunks []rag.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return 0, fmt.Errorf("%w: chunk %q has no embedding", rag.ErrInvalidParameter, c.ID)
		}
		if len(c.Embedding) != p.dim {
			return 0, fmt.Errorf("%w: chunk %q embedding has dimension %d, index expects %d",
				rag.ErrInvalidParameter, c.ID, len(c.Embedding), p.dim)
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, storeErr("begin upsert", err)
	}
	defer rollback(ctx, tx, p.logger)

	if err := lockDocumentRows(ctx, tx, documentIDs(chunks)); err != nil {
		return 0, err
	}

	const upsertSQL = `
		INSERT INTO chunks (id, document_id, content, embedding, metadata, sequence_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			document_id    = EXCLUDED.document_id,
			content        = EXCLUDED.content,
			embedding      = EXCLUDED.embedding,
			metadata       = EXCLUDED.metadata,
			sequence_index = EXCLUDED.sequence_index,
			created_at     = EXCLUDED.created_at`

	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshaling metadata of chunk %q: %w", c.ID, err)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, upsertSQL,
			c.ID, c.DocumentID, c.Text, pgvector.NewVector(c.Embedding),
			metadataJSON, c.SequenceIndex, createdAt); err != nil {
			return 0, storeErr(fmt.Sprintf("upsert chunk %q", c.ID), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, storeErr("commit upsert", err)
	}
	return len(chunks), nil
}

// DeleteByDocument removes all chunks of a document and returns the
// count removed.
func (p *Postgres) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, storeErr("begin delete", err)
	}
	defer rollback(ctx, tx, p.logger)

	if err := lockDocumentRows(ctx, tx, []string{documentID}); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, storeErr(fmt.Sprintf("delete chunks of %q", documentID), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storeErr("commit delete", err)
	}
	return int(tag.RowsAffected()), nil
}

// Query returns up to topK chunks ranked by cosine similarity:
// descending score, equal scores broken by ascending chunk ID. The
// optional filter restricts results to chunks whose metadata contains
// every entry (JSONB containment).
func (p *Postgres) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]rag.Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", rag.ErrInvalidParameter, topK)
	}
	if len(vector) != p.dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index expects %d",
			rag.ErrInvalidParameter, len(vector), p.dim)
	}

	// Cosine distance is undefined for a zero query vector (pgvector
	// yields NaN); rank everything at -1 deterministically instead.
	if isZero(vector) {
		return p.queryZeroVector(ctx, topK, filter)
	}

	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshaling filter: %w", err)
	}

	// A stored zero vector makes cosine_distance yield NaN, which sorts
	// above every number under DESC; the CASE pins such rows to -1 so
	// they rank last, matching the in-memory backend.
	const querySQL = `
		SELECT id, document_id, content, metadata, sequence_index, created_at,
		       CASE WHEN embedding <=> $1 = 'NaN'::float8 THEN -1::float8
		            ELSE 1 - (embedding <=> $1) END AS similarity
		FROM chunks
		WHERE ($2::jsonb IS NULL OR metadata @> $2::jsonb)
		ORDER BY similarity DESC, id ASC
		LIMIT $3`

	rows, err := p.pool.Query(ctx, querySQL, pgvector.NewVector(vector), nullableJSON(filterJSON), topK)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()

	return p.scanResults(rows, nil)
}

// queryZeroVector handles the zero-vector edge case: every stored chunk
// scores -1 and ordering falls back to the tie-break (ascending ID).
func (p *Postgres) queryZeroVector(ctx context.Context, topK int, filter map[string]string) ([]rag.Result, error) {
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshaling filter: %w", err)
	}

	const querySQL = `
		SELECT id, document_id, content, metadata, sequence_index, created_at,
		       -1::float8 AS similarity
		FROM chunks
		WHERE ($1::jsonb IS NULL OR metadata @> $1::jsonb)
		ORDER BY id ASC
		LIMIT $2`

	rows, err := p.pool.Query(ctx, querySQL, nullableJSON(filterJSON), topK)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()

	return p.scanResults(rows, nil)
}

// Clear removes all entries. Destructive.
func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `TRUNCATE chunks`); err != nil {
		return storeErr("clear", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var count int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, storeErr("count", err)
	}
	return int(count), nil
}

// scanResults converts query rows into results, tolerating unparseable
// metadata (logged, replaced with an empty map) rather than failing the
// whole retrieval.
func (p *Postgres) scanResults(rows pgx.Rows, results []rag.Result) ([]rag.Result, error) {
	for rows.Next() {
		var (
			c            rag.Chunk
			metadataJSON []byte
			similarity   float64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Text, &metadataJSON,
			&c.SequenceIndex, &c.CreatedAt, &similarity); err != nil {
			return nil, storeErr("scan result", err)
		}
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			p.logger.Warn("failed to parse chunk metadata", "chunk_id", c.ID, "error", err)
			c.Metadata = make(map[string]string)
		}
		results = append(results, rag.Result{Chunk: c, Score: float32(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate results", err)
	}
	return results, nil
}

// lockDocumentRows takes a transaction-scoped advisory lock for each
// document, in sorted order to avoid lock-order inversion between
// concurrent multi-document writes.
func lockDocumentRows(ctx context.Context, tx pgx.Tx, ids []string) error {
	for _, id := range sortedCopy(ids) {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, id); err != nil {
			return storeErr(fmt.Sprintf("lock document %q", id), err)
		}
	}
	return nil
}

func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

// nullableJSON maps an empty filter to SQL NULL so the containment
// clause short-circuits.
func nullableJSON(data []byte) any {
	if len(data) == 0 || string(data) == "null" || string(data) == "{}" {
		return nil
	}
	return data
}

func isZero(vector []float32) bool {
	for _, v := range vector {
		if v != 0 {
			return false
		}
	}
	return true
}

// storeErr classifies backing-store failures as ErrIndexUnavailable
// while preserving the underlying cause for inspection.
func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, rag.ErrIndexUnavailable, err)
}

// rollback releases a transaction; the error is expected when the
// transaction already committed.
func rollback(ctx context.Context, tx pgx.Tx, logger *slog.Logger) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Debug("transaction rollback", "error", err)
	}
}
