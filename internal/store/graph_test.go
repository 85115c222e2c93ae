package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lexum-research/lexum/internal/research/core"
)

func TestMemoryGraphQuery(t *testing.T) {
	g := NewMemoryGraph()
	g.AddPrecedent(core.Document{
		ID: "p1", Title: "Section 382 Deal", Content: "limitation precedent", Type: "precedent",
		PublishedAt: time.Now(),
	}, []string{"382", "limitation"})
	g.AddPrecedent(core.Document{
		ID: "p2", Title: "Spin-off Ruling", Content: "distribution", Type: "precedent",
	}, []string{"355"})

	records, err := g.ExecuteQuery(context.Background(), "precedents_for_entities", map[string]interface{}{
		"entities": []string{"382"},
		"keywords": []string{"limitation"},
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec["id"] != "p1" || rec["title"] != "Section 382 Deal" {
		t.Fatalf("wrong record: %v", rec)
	}
	// two term hits on the same node
	relevance, _ := rec["relevance"].(float64)
	if relevance < 0.69 || relevance > 0.71 {
		t.Fatalf("relevance should reflect hit count, got %v", rec["relevance"])
	}
	if _, ok := rec["published_at"].(time.Time); !ok {
		t.Fatalf("published_at missing: %v", rec)
	}
}

func TestMemoryGraphOrderingAndLimit(t *testing.T) {
	g := NewMemoryGraph()
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("p%d", i)
		terms := []string{"shared"}
		if i == 7 {
			terms = append(terms, "382", "nol")
		}
		g.AddPrecedent(core.Document{ID: id, Title: id, Content: "body"}, terms)
	}

	records, err := g.ExecuteQuery(context.Background(), "precedents_for_entities", map[string]interface{}{
		"entities": []string{"382"},
		"keywords": []string{"shared", "nol"},
		"limit":    5,
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("limit not applied, got %d", len(records))
	}
	if records[0]["id"] != "p7" {
		t.Fatalf("most-connected node should rank first, got %v", records[0]["id"])
	}
}

func TestMemoryGraphTermsCaseInsensitive(t *testing.T) {
	g := NewMemoryGraph()
	g.AddPrecedent(core.Document{ID: "p1", Title: "t", Content: "c"}, []string{"GILTI"})

	records, err := g.ExecuteQuery(context.Background(), "precedents_for_entities", map[string]interface{}{
		"keywords": []string{"gilti"},
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("term matching should be case-insensitive, got %d records", len(records))
	}
}

func TestMemoryGraphReAddExtendsEdges(t *testing.T) {
	g := NewMemoryGraph()
	doc := core.Document{ID: "p1", Title: "v1", Content: "c"}
	g.AddPrecedent(doc, []string{"alpha"})
	doc.Title = "v2"
	g.AddPrecedent(doc, []string{"beta", "alpha"})

	if g.Size() != 1 {
		t.Fatalf("re-adding should replace, got %d nodes", g.Size())
	}
	records, err := g.ExecuteQuery(context.Background(), "precedents_for_entities", map[string]interface{}{
		"keywords": []string{"beta"},
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 1 || records[0]["title"] != "v2" {
		t.Fatalf("node should be replaced and reachable via new edge: %v", records)
	}
}

func TestMemoryGraphUnknownSpec(t *testing.T) {
	g := NewMemoryGraph()
	if _, err := g.ExecuteQuery(context.Background(), "shortest_path", nil); err == nil {
		t.Fatalf("unknown specs should error")
	}
}

func TestMemoryGraphCancelledContext(t *testing.T) {
	g := NewMemoryGraph()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.ExecuteQuery(ctx, "precedents_for_entities", nil); err == nil {
		t.Fatalf("cancelled context should error")
	}
}
