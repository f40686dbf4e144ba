package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"rulewise/apps/backend/internal/cache"
)

const (
	askTopK     = 3
	explainTopK = 5

	// Rough spoken reading speed used for Explain's read-time estimate.
	wordsPerMinute = 200
)

// Service is the retrieval-and-grounded-generation engine: embed the query,
// search the domain's chunks, prompt the LLM with only that context, assemble
// citations, cache the result. All failure modes produce well-formed results,
// never errors.
type Service struct {
	embedder Embedder
	store    Searcher
	llm      LLM
	cache    Cache
	ttl      time.Duration
}

// NewService builds the engine. ttl bounds how long answers and explanations
// stay cached; non-positive values fall back to cache.DefaultTTL.
func NewService(e Embedder, s Searcher, l LLM, c Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Service{embedder: e, store: s, llm: l, cache: c, ttl: ttl}
}

// Ask answers a rules question for one domain.
func (s *Service) Ask(ctx context.Context, domainID, query string) AnswerResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return AnswerResult{Answer: PromptForInput}
	}

	key := cache.Key(domainID, cache.KindAnswer, query)
	if cached, ok := s.cachedAnswer(ctx, key); ok {
		return cached
	}

	hits, failed := s.retrieve(ctx, domainID, query, askTopK)
	if failed {
		return AnswerResult{Answer: GenericFailureAnswer}
	}
	if len(hits) == 0 {
		// Defined outcome, not an error: the rulebook simply has nothing.
		return AnswerResult{Answer: NotSpecifiedAnswer, Success: true}
	}

	completion, err := s.llm.Complete(ctx, answerSystemPrompt, buildAnswerPrompt(query, hits))
	if err != nil {
		// Partial success: keep the citations retrieval already produced.
		return AnswerResult{
			Answer:     GenerationFailureAnswer,
			Citations:  hits,
			Confidence: maxScore(hits),
		}
	}

	result := AnswerResult{
		Answer:     completion.Text,
		Citations:  hits,
		TokensUsed: completion.TokensUsed,
		Confidence: maxScore(hits),
		Success:    true,
	}
	s.storeResult(ctx, key, result)
	return result
}

// Explain produces a teaching outline and script for a rules topic. Wider
// retrieval window than Ask, same grounding and failure rules.
func (s *Service) Explain(ctx context.Context, domainID, topic string) ExplanationResult {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ExplanationResult{Script: PromptForInput}
	}

	key := cache.Key(domainID, cache.KindExplanation, topic)
	if data, ok := s.cache.Get(ctx, key); ok {
		var cached ExplanationResult
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached
		}
		slog.WarnContext(ctx, "corrupt cached explanation, ignoring", "key", key)
	}

	hits, failed := s.retrieve(ctx, domainID, topic, explainTopK)
	if failed {
		return ExplanationResult{Script: GenericFailureAnswer}
	}
	if len(hits) == 0 {
		return ExplanationResult{Script: NoTopicInfoAnswer, Success: true}
	}

	// Outline and script derive purely from the top results in score order.
	outlineHits := hits
	if len(outlineHits) > explainTopK {
		outlineHits = outlineHits[:explainTopK]
	}
	outline := buildOutline(outlineHits)

	completion, err := s.llm.Complete(ctx, explainSystemPrompt, buildExplainPrompt(topic, outlineHits))
	if err != nil {
		return ExplanationResult{
			Script:    GenerationFailureAnswer,
			Outline:   outline,
			Citations: hits,
		}
	}

	result := ExplanationResult{
		Outline:              outline,
		Script:               completion.Text,
		Citations:            hits,
		EstimatedReadMinutes: estimateReadMinutes(completion.Text),
		Success:              true,
	}
	s.storeExplanation(ctx, key, result)
	return result
}

// retrieve embeds the query and searches the domain. failed=true means an
// upstream call broke; zero hits with failed=false is a defined outcome.
func (s *Service) retrieve(ctx context.Context, domainID, query string, limit int) ([]Hit, bool) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.ErrorContext(ctx, "query embedding failed", "domain_id", domainID, "error", err)
		return nil, true
	}

	hits, err := s.store.Search(ctx, domainID, vec, limit)
	if err != nil {
		slog.ErrorContext(ctx, "vector search failed", "domain_id", domainID, "error", err)
		return nil, true
	}
	return hits, false
}

func (s *Service) cachedAnswer(ctx context.Context, key string) (AnswerResult, bool) {
	data, ok := s.cache.Get(ctx, key)
	if !ok {
		return AnswerResult{}, false
	}
	var cached AnswerResult
	if err := json.Unmarshal(data, &cached); err != nil {
		slog.WarnContext(ctx, "corrupt cached answer, ignoring", "key", key)
		return AnswerResult{}, false
	}
	return cached, true
}

func (s *Service) storeResult(ctx context.Context, key string, result AnswerResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, data, s.ttl)
}

func (s *Service) storeExplanation(ctx context.Context, key string, result ExplanationResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, data, s.ttl)
}

func maxScore(hits []Hit) float32 {
	var max float32
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	return max
}

// buildOutline turns each retrieved chunk into one headline: its first
// sentence, truncated if the chunk runs on.
func buildOutline(hits []Hit) []string {
	outline := make([]string, 0, len(hits))
	for _, h := range hits {
		line := strings.TrimSpace(h.Content)
		for _, term := range []string{". ", "! ", "? "} {
			if idx := strings.Index(line, term); idx >= 0 {
				line = line[:idx+1]
				break
			}
		}
		if len(line) > 120 {
			line = strings.TrimSpace(line[:117]) + "..."
		}
		outline = append(outline, line)
	}
	return outline
}

func estimateReadMinutes(script string) int {
	words := len(strings.Fields(script))
	if words == 0 {
		return 0
	}
	return (words + wordsPerMinute - 1) / wordsPerMinute
}
