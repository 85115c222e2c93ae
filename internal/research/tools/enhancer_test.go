package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/lexum-research/lexum/internal/research/core"
)

type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (s *scriptedLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	out, err := s.Generate(ctx, prompt, model, options)
	return out, 0, 0, err
}

func (s *scriptedLLM) GetAvailableModels() []string { return nil }

func (s *scriptedLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 { return 0 }

func enhancerDocs(n int) []core.Document {
	docs := make([]core.Document, n)
	for i := range docs {
		docs[i] = core.Document{ID: string(rune('a' + i)), Title: "doc", Content: "content"}
	}
	return docs
}

func TestEnhancerAnnotatesScores(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"scores": [{"index": 0, "quality": 0.9, "coherence": 0.7}, {"index": 1, "quality": 0.3, "coherence": 0.4}]}`,
	}}
	tool := NewEnhancerTool(llm, testRouter(), 0)

	docs := enhancerDocs(2)
	res, err := tool.Call(context.Background(), "question", map[string]interface{}{"documents": docs})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(res.Documents) != 2 {
		t.Fatalf("document count should be preserved, got %d", len(res.Documents))
	}
	if res.Documents[0].Metadata["quality_score"] != 0.9 || res.Documents[0].Metadata["coherence_score"] != 0.7 {
		t.Fatalf("scores not annotated: %v", res.Documents[0].Metadata)
	}
	if res.Documents[1].Metadata["quality_score"] != 0.3 {
		t.Fatalf("second document not annotated: %v", res.Documents[1].Metadata)
	}
}

func TestEnhancerRetriesOnBadResponse(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"no json here",
		`{"scores": [{"index": 0, "quality": 0.8, "coherence": 0.8}]}`,
	}}
	tool := NewEnhancerTool(llm, testRouter(), 1)

	res, err := tool.Call(context.Background(), "question", map[string]interface{}{"documents": enhancerDocs(1)})
	if err != nil {
		t.Fatalf("retry should recover: %v", err)
	}
	if llm.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", llm.calls)
	}
	if res.Documents[0].Metadata["quality_score"] != 0.8 {
		t.Fatalf("scores not annotated after retry: %v", res.Documents[0].Metadata)
	}
}

func TestEnhancerFailsAfterRetries(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("down"), errors.New("down")}}
	tool := NewEnhancerTool(llm, testRouter(), 1)

	if _, err := tool.Call(context.Background(), "question", map[string]interface{}{"documents": enhancerDocs(1)}); err == nil {
		t.Fatalf("exhausted retries should fail")
	}
}

func TestEnhancerClampsScores(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"scores": [{"index": 0, "quality": 1.8, "coherence": -0.4}]}`,
	}}
	tool := NewEnhancerTool(llm, testRouter(), 0)

	res, err := tool.Call(context.Background(), "question", map[string]interface{}{"documents": enhancerDocs(1)})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if res.Documents[0].Metadata["quality_score"] != 1.0 || res.Documents[0].Metadata["coherence_score"] != 0.0 {
		t.Fatalf("scores not clamped: %v", res.Documents[0].Metadata)
	}
}

func TestEnhancerIgnoresOutOfRangeIndexes(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"scores": [{"index": 7, "quality": 0.9, "coherence": 0.9}, {"index": 0, "quality": 0.5, "coherence": 0.5}]}`,
	}}
	tool := NewEnhancerTool(llm, testRouter(), 0)

	res, err := tool.Call(context.Background(), "question", map[string]interface{}{"documents": enhancerDocs(2)})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if res.Documents[0].Metadata["quality_score"] != 0.5 {
		t.Fatalf("valid index should still apply: %v", res.Documents[0].Metadata)
	}
	if res.Documents[1].Metadata != nil {
		t.Fatalf("out-of-range index should be ignored: %v", res.Documents[1].Metadata)
	}
}

func TestEnhancerEmptyInput(t *testing.T) {
	llm := &scriptedLLM{}
	tool := NewEnhancerTool(llm, testRouter(), 0)

	res, err := tool.Call(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("empty input should be a no-op: %v", err)
	}
	if len(res.Documents) != 0 {
		t.Fatalf("no documents expected")
	}
	if llm.calls != 0 {
		t.Fatalf("no model call expected for empty input")
	}
}
