// Package archive provides the optional PostgreSQL-backed transcript archive.
//
// Reconciled transcripts are stored as JSONB alongside a pgvector embedding of
// their display text, enabling semantic search over past sessions. The
// pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/tandemscribe/tandem/internal/reconcile"
	"github.com/tandemscribe/tandem/pkg/provider/embeddings"
	"github.com/tandemscribe/tandem/pkg/types"
)

// ErrNoEmbedder is returned by [Store.Search] when the store was created
// without an embeddings provider.
var ErrNoEmbedder = errors.New("archive: no embeddings provider configured")

// Record is one archived reconciliation result.
type Record struct {
	SessionID     string           `json:"sessionId"`
	ChunkID       string           `json:"chunkId"`
	DisplayText   string           `json:"displayText"`
	Transcript    types.Transcript `json:"transcript"`
	Mode          string           `json:"mode"`
	UsedSecondary bool             `json:"usedSecondary"`
	UsedLLM       bool             `json:"usedLLM"`
	FailedSpans   int              `json:"failedSpans"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// SearchResult is a [Record] with its cosine distance to the query.
type SearchResult struct {
	Record
	Distance float64 `json:"distance"`
}

// Store is the PostgreSQL-backed transcript archive. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to ensure
// the archive schema exists.
//
// embedder may be nil, in which case transcripts are archived without an
// embedding and [Store.Search] is unavailable. When embeddingDimensions is
// zero or negative the embedder's own dimension is used.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider, embeddingDimensions int) (*Store, error) {
	if embeddingDimensions <= 0 {
		if embedder != nil {
			embeddingDimensions = embedder.Dimensions()
		} else {
			embeddingDimensions = 1536
		}
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, embedder: embedder}, nil
}

// Save archives one reconciliation result under (sessionID, chunkID). Saving
// the same pair twice replaces the earlier record. When an embeddings
// provider is configured, the display text is embedded for later search; an
// embedding failure does not fail the save.
func (s *Store) Save(ctx context.Context, sessionID, chunkID string, res *reconcile.Result) error {
	transcriptJSON, err := json.Marshal(res.Transcript)
	if err != nil {
		return fmt.Errorf("archive: marshal transcript: %w", err)
	}

	var embedding any // NULL when no embedder or embedding fails
	if s.embedder != nil && res.DisplayText != "" {
		if vec, embErr := s.embedder.Embed(ctx, res.DisplayText); embErr == nil {
			embedding = pgvector.NewVector(vec)
		}
	}

	const q = `
		INSERT INTO transcripts
		    (session_id, chunk_id, display_text, transcript, mode,
		     used_secondary, used_llm, failed_spans, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, chunk_id) DO UPDATE SET
		    display_text   = EXCLUDED.display_text,
		    transcript     = EXCLUDED.transcript,
		    mode           = EXCLUDED.mode,
		    used_secondary = EXCLUDED.used_secondary,
		    used_llm       = EXCLUDED.used_llm,
		    failed_spans   = EXCLUDED.failed_spans,
		    embedding      = EXCLUDED.embedding,
		    created_at     = now()`

	_, err = s.pool.Exec(ctx, q,
		sessionID,
		chunkID,
		res.DisplayText,
		transcriptJSON,
		string(res.Mode),
		res.UsedSecondary,
		res.UsedLLM,
		res.FailedSpans,
		embedding,
	)
	if err != nil {
		return fmt.Errorf("archive: save transcript: %w", err)
	}
	return nil
}

// History returns the archived records for sessionID, newest first, capped at
// limit. A non-positive limit defaults to 50.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT session_id, chunk_id, display_text, transcript, mode,
		       used_secondary, used_llm, failed_spans, created_at
		FROM   transcripts
		WHERE  session_id = $1
		ORDER BY created_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec            Record
			transcriptJSON []byte
		)
		if err := rows.Scan(
			&rec.SessionID, &rec.ChunkID, &rec.DisplayText, &transcriptJSON,
			&rec.Mode, &rec.UsedSecondary, &rec.UsedLLM, &rec.FailedSpans,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("archive: scan record: %w", err)
		}
		if err := json.Unmarshal(transcriptJSON, &rec.Transcript); err != nil {
			return nil, fmt.Errorf("archive: decode transcript: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: history rows: %w", err)
	}
	return records, nil
}

// Search finds the limit archived transcripts whose embeddings are closest
// (cosine distance) to the query text, most similar first. When sessionID is
// non-empty the search is restricted to that session.
func (s *Store) Search(ctx context.Context, query, sessionID string, limit int) ([]SearchResult, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if limit <= 0 {
		limit = 10
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("archive: embed query: %w", err)
	}
	queryVec := pgvector.NewVector(vec)

	q := `
		SELECT session_id, chunk_id, display_text, transcript, mode,
		       used_secondary, used_llm, failed_spans, created_at,
		       embedding <=> $1 AS distance
		FROM   transcripts
		WHERE  embedding IS NOT NULL`
	args := []any{queryVec}
	if sessionID != "" {
		args = append(args, sessionID)
		q += fmt.Sprintf("\n\t\t  AND session_id = $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf("\n\t\tORDER BY distance\n\t\tLIMIT  $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			sr             SearchResult
			transcriptJSON []byte
		)
		if err := rows.Scan(
			&sr.SessionID, &sr.ChunkID, &sr.DisplayText, &transcriptJSON,
			&sr.Mode, &sr.UsedSecondary, &sr.UsedLLM, &sr.FailedSpans,
			&sr.CreatedAt, &sr.Distance,
		); err != nil {
			return nil, fmt.Errorf("archive: scan result: %w", err)
		}
		if err := json.Unmarshal(transcriptJSON, &sr.Transcript); err != nil {
			return nil, fmt.Errorf("archive: decode transcript: %w", err)
		}
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: search rows: %w", err)
	}
	return results, nil
}

// Ping verifies database connectivity. Used as a readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
