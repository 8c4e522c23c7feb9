// Package retrieval searches the tenant's indexed knowledge chunks.
package retrieval

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/capitalize-ai/support-agent/internal/llm"
	"github.com/capitalize-ai/support-agent/internal/model"
)

// DefaultTable is the table the ingestion pipeline writes chunks to.
const DefaultTable = "knowledge_chunks"

// PGVector runs similarity search against a pgvector column.
type PGVector struct {
	db       *sql.DB
	embedder llm.Embedder
	query    string
}

// NewPGVector creates a retrieval gateway over table.
func NewPGVector(db *sql.DB, embedder llm.Embedder, table string) *PGVector {
	if table == "" {
		table = DefaultTable
	}
	return &PGVector{
		db:       db,
		embedder: embedder,
		query: fmt.Sprintf(`SELECT id, content, COALESCE(source, ''), 1 - (embedding <=> $2::vector) AS score
FROM %s
WHERE tenant_id = $1
ORDER BY embedding <=> $2::vector
LIMIT $3`, table),
	}
}

// Search returns up to topK chunks of the tenant's knowledge closest to query.
func (p *PGVector) Search(ctx context.Context, tenantID, query string, topK int) ([]model.ContextChunk, error) {
	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", model.ErrRetrievalUnavailable, err)
	}

	rows, err := p.db.QueryContext(ctx, p.query, tenantID, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRetrievalUnavailable, err)
	}
	defer rows.Close()

	var chunks []model.ContextChunk
	for rows.Next() {
		var c model.ContextChunk
		if err := rows.Scan(&c.ID, &c.Content, &c.Source, &c.Score); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", model.ErrRetrievalUnavailable, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRetrievalUnavailable, err)
	}

	return chunks, nil
}
