package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Aggregator merges document sets at every phase join and produces the
// final ranked list. Merging is first-seen-wins: later duplicates are
// dropped whole, never merged field by field.
type Aggregator struct{}

// NewAggregator creates a result aggregator.
func NewAggregator() *Aggregator { return &Aggregator{} }

const fingerprintPrefix = 200

// Fingerprint derives the content-based identity used when a document has
// no stable ID: a hash of the normalized content prefix, so two documents
// with different surface IDs but identical content collapse to one.
func Fingerprint(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	if len(normalized) > fingerprintPrefix {
		normalized = normalized[:fingerprintPrefix]
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func dedupKeys(doc Document) (idKey, contentKey string) {
	if doc.ID != "" {
		idKey = doc.ID
	}
	// identified documents without content dedup by ID alone
	if doc.Content == "" && idKey != "" {
		return
	}
	contentKey = Fingerprint(doc.Content)
	return
}

// Merge appends incoming documents to existing, dropping any whose ID or
// content fingerprint was already seen. Re-merging the same incoming set
// changes nothing.
func (g *Aggregator) Merge(existing, incoming []Document) []Document {
	seenIDs := make(map[string]struct{}, len(existing)+len(incoming))
	seenContent := make(map[string]struct{}, len(existing)+len(incoming))

	merged := make([]Document, 0, len(existing)+len(incoming))
	for _, docs := range [][]Document{existing, incoming} {
		for _, doc := range docs {
			idKey, contentKey := dedupKeys(doc)
			if idKey != "" {
				if _, dup := seenIDs[idKey]; dup {
					continue
				}
			}
			if contentKey != "" {
				if _, dup := seenContent[contentKey]; dup {
					continue
				}
			}
			merged = append(merged, doc)
			if idKey != "" {
				seenIDs[idKey] = struct{}{}
			}
			if contentKey != "" {
				seenContent[contentKey] = struct{}{}
			}
		}
	}
	return merged
}

// RankAndLimit orders documents by their weighted rank score and caps the
// result at the complexity tier's limit. The rank score is annotated into
// each document's metadata without altering identity fields.
func (g *Aggregator) RankAndLimit(documents []Document, complexity QueryComplexity) []Document {
	ranked := make([]Document, len(documents))
	copy(ranked, documents)

	scores := make(map[int]float64, len(ranked))
	for i := range ranked {
		scores[i] = RankScore(ExtractRankFeatures(ranked[i]))
	}

	order := make([]int, len(ranked))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	limit := MaxDocumentsFor(complexity)
	if limit > len(order) {
		limit = len(order)
	}

	out := make([]Document, 0, limit)
	for rank := 0; rank < limit; rank++ {
		doc := ranked[order[rank]]
		meta := make(map[string]interface{}, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["rank"] = rank + 1
		meta["rank_score"] = scores[order[rank]]
		doc.Metadata = meta
		out = append(out, doc)
	}
	return out
}
