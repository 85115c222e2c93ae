package store

import (
	"context"
	"os"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
)

// BleveStore is the lexical fallback index used when Postgres is not
// configured. Documents live in a side map; the index only carries the
// searchable text, the way small bleve corpora are usually kept.
type BleveStore struct {
	index bleve.Index
	mu    sync.RWMutex
	meta  map[string]core.Document
}

// indexedDoc is the searchable projection of a document.
type indexedDoc struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	DocumentType string `json:"document_type"`
}

// NewBleveStore opens the index at cfg.Path, creating it when absent. An
// empty path keeps the index in memory.
func NewBleveStore(cfg config.IndexConfig) (*BleveStore, error) {
	var index bleve.Index
	var err error
	if cfg.Path == "" {
		index, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else if _, statErr := os.Stat(cfg.Path); statErr == nil {
		index, err = bleve.Open(cfg.Path)
	} else {
		index, err = bleve.New(cfg.Path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, err
	}
	return &BleveStore{
		index: index,
		meta:  make(map[string]core.Document),
	}, nil
}

// IndexDocument adds or replaces one document.
func (s *BleveStore) IndexDocument(doc core.Document) error {
	s.mu.Lock()
	s.meta[doc.ID] = doc
	s.mu.Unlock()
	return s.index.Index(doc.ID, indexedDoc{
		Title:        doc.Title,
		Content:      doc.Content,
		DocumentType: doc.Type,
	})
}

// IndexBatch adds documents in one bleve batch.
func (s *BleveStore) IndexBatch(docs []core.Document) error {
	batch := s.index.NewBatch()
	s.mu.Lock()
	for _, doc := range docs {
		s.meta[doc.ID] = doc
		if err := batch.Index(doc.ID, indexedDoc{
			Title:        doc.Title,
			Content:      doc.Content,
			DocumentType: doc.Type,
		}); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()
	return s.index.Batch(batch)
}

// Search implements core.VectorStore. Scores are normalised against the
// top hit so the best match lands near 1.0.
func (s *BleveStore) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]core.Document, error) {
	if topK <= 0 {
		topK = 10
	}

	match := bleve.NewMatchQuery(query)
	var searchQuery = bleve.NewConjunctionQuery(match)
	if filter != nil && filter["document_type"] != "" {
		typeQuery := bleve.NewMatchPhraseQuery(filter["document_type"])
		typeQuery.SetField("document_type")
		searchQuery.AddQuery(typeQuery)
	}

	req := bleve.NewSearchRequestOptions(searchQuery, topK, 0, false)
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	var topScore float64
	if len(res.Hits) > 0 {
		topScore = res.Hits[0].Score
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []core.Document
	for _, hit := range res.Hits {
		doc, ok := s.meta[hit.ID]
		if !ok {
			continue
		}
		if topScore > 0 {
			doc.RelevanceScore = hit.Score / topScore
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of indexed documents.
func (s *BleveStore) Count() (uint64, error) { return s.index.DocCount() }

func (s *BleveStore) Close() error { return s.index.Close() }
