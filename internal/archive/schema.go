package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlTranscripts returns the archive DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlTranscripts(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS transcripts (
    session_id     TEXT         NOT NULL,
    chunk_id       TEXT         NOT NULL,
    display_text   TEXT         NOT NULL,
    transcript     JSONB        NOT NULL,
    mode           TEXT         NOT NULL DEFAULT '',
    used_secondary BOOLEAN      NOT NULL DEFAULT FALSE,
    used_llm       BOOLEAN      NOT NULL DEFAULT FALSE,
    failed_spans   INT          NOT NULL DEFAULT 0,
    embedding      vector(%d),
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_transcripts_session_id
    ON transcripts (session_id);

CREATE INDEX IF NOT EXISTS idx_transcripts_created_at
    ON transcripts (created_at);

CREATE INDEX IF NOT EXISTS idx_transcripts_embedding
    ON transcripts USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the archive tables and extensions exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
//
// embeddingDimensions must match the output dimension of the configured
// embedding model (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlTranscripts(embeddingDimensions)); err != nil {
		return fmt.Errorf("archive migrate: %w", err)
	}
	return nil
}
