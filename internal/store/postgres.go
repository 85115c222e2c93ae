package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
)

// PostgresStore is the durable document corpus and result archive. Search
// uses Postgres full-text ranking; it backs the internal retrieval agents
// as their VectorStore.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(cfg config.PostgresConfig) (*PostgresStore, error) {
	dsn := cfg.URL
	if dsn == "" {
		host := cfg.Host
		port := cfg.Port
		ssl := cfg.SSLMode
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "5432"
		}
		if ssl == "" {
			ssl = "disable"
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			cfg.User, cfg.Password, host, port, cfg.DBName, ssl)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    document_type TEXT NOT NULL,
    source TEXT,
    published_at TIMESTAMPTZ,
    metadata JSONB,
    search_vector tsvector GENERATED ALWAYS AS (to_tsvector('english', title || ' ' || content)) STORED,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS documents_search_idx ON documents USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS documents_type_idx ON documents (document_type);

CREATE TABLE IF NOT EXISTS research_results (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    status TEXT NOT NULL,
    synthesis JSONB,
    documents JSONB,
    metadata JSONB,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
`)
	return err
}

// Search implements core.VectorStore over the full-text index. Rank scores
// are squashed into [0,1) so they compose with the other relevance signals.
func (s *PostgresStore) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]core.Document, error) {
	if topK <= 0 {
		topK = 10
	}
	docType := ""
	if filter != nil {
		docType = filter["document_type"]
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, content, document_type, COALESCE(source, ''), published_at, metadata,
       ts_rank_cd(search_vector, plainto_tsquery('english', $1)) AS rank
FROM documents
WHERE search_vector @@ plainto_tsquery('english', $1)
  AND ($2 = '' OR document_type = $2)
ORDER BY rank DESC
LIMIT $3`, query, docType, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []core.Document
	for rows.Next() {
		var doc core.Document
		var published sql.NullTime
		var metaB []byte
		var rank float64
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Type, &doc.Source, &published, &metaB, &rank); err != nil {
			return nil, err
		}
		if published.Valid {
			doc.PublishedAt = published.Time
		}
		if len(metaB) > 0 {
			_ = json.Unmarshal(metaB, &doc.Metadata)
		}
		doc.RelevanceScore = rank / (rank + 0.1)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SaveDocument upserts one corpus document.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc core.Document) error {
	metaB, _ := json.Marshal(doc.Metadata)
	var published *time.Time
	if !doc.PublishedAt.IsZero() {
		published = &doc.PublishedAt
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (id, title, content, document_type, source, published_at, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  content = EXCLUDED.content,
  document_type = EXCLUDED.document_type,
  source = EXCLUDED.source,
  published_at = EXCLUDED.published_at,
  metadata = EXCLUDED.metadata`,
		doc.ID, doc.Title, doc.Content, doc.Type, doc.Source, published, metaB)
	return err
}

// SaveResearchResult archives a completed pipeline result.
func (s *PostgresStore) SaveResearchResult(ctx context.Context, result core.ResearchResult) error {
	synthB, _ := json.Marshal(result.Synthesis)
	docsB, _ := json.Marshal(result.Documents)
	metaB, _ := json.Marshal(result.Metadata)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO research_results (id, query, status, synthesis, documents, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  synthesis = EXCLUDED.synthesis,
  documents = EXCLUDED.documents,
  metadata = EXCLUDED.metadata`,
		result.ID, result.Query, result.Status, synthB, docsB, metaB, result.CreatedAt)
	return err
}

// GetResearchResult loads one archived result by ID.
func (s *PostgresStore) GetResearchResult(ctx context.Context, id string) (core.ResearchResult, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, query, status, synthesis, documents, metadata, created_at
FROM research_results WHERE id = $1`, id)

	var result core.ResearchResult
	var synthB, docsB, metaB []byte
	if err := row.Scan(&result.ID, &result.Query, &result.Status, &synthB, &docsB, &metaB, &result.CreatedAt); err != nil {
		return core.ResearchResult{}, err
	}
	_ = json.Unmarshal(synthB, &result.Synthesis)
	_ = json.Unmarshal(docsB, &result.Documents)
	_ = json.Unmarshal(metaB, &result.Metadata)
	return result, nil
}

// ListRecentResults returns the latest archived results, newest first.
func (s *PostgresStore) ListRecentResults(ctx context.Context, limit int) ([]core.ResearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, query, status, synthesis, metadata, created_at
FROM research_results ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ResearchResult
	for rows.Next() {
		var result core.ResearchResult
		var synthB, metaB []byte
		if err := rows.Scan(&result.ID, &result.Query, &result.Status, &synthB, &metaB, &result.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(synthB, &result.Synthesis)
		_ = json.Unmarshal(metaB, &result.Metadata)
		out = append(out, result)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error { return s.db.Close() }
