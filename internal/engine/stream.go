package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"rulewise/apps/backend/internal/cache"
)

type EventType string

const (
	EventState     EventType = "state"
	EventCitations EventType = "citations"
	EventToken     EventType = "token"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
)

// Event is one element of a progressive answer stream. The sequence is
// StateUpdate* -> Citations (once) -> Token* -> Complete | Error, whether the
// answer was generated live or replayed from cache.
type Event struct {
	Type        EventType `json:"type"`
	Message     string    `json:"message,omitempty"`
	Citations   []Hit     `json:"citations,omitempty"`
	Token       string    `json:"token,omitempty"`
	TotalTokens int       `json:"total_tokens,omitempty"`
	Confidence  float32   `json:"confidence,omitempty"`
}

// AskStream decomposes the Ask flow into an ordered event sequence. Consumer
// cancellation via ctx halts emission promptly; a stream interrupted before
// Complete caches nothing.
func (s *Service) AskStream(ctx context.Context, domainID, query string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		s.streamAsk(ctx, domainID, query, out)
	}()
	return out
}

func (s *Service) streamAsk(ctx context.Context, domainID, query string, out chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		emit(Event{Type: EventError, Message: PromptForInput})
		return
	}

	key := cache.Key(domainID, cache.KindAnswer, query)
	if cached, ok := s.cachedAnswer(ctx, key); ok {
		s.replayCached(ctx, cached, out)
		return
	}

	if !emit(Event{Type: EventState, Message: "searching the rulebook"}) {
		return
	}

	hits, failed := s.retrieve(ctx, domainID, query, askTopK)
	if failed {
		emit(Event{Type: EventError, Message: GenericFailureAnswer})
		return
	}
	if len(hits) == 0 {
		// Uniform contract: the sentinel is streamed like a real answer.
		if !emit(Event{Type: EventCitations}) {
			return
		}
		tokens := splitTokens(NotSpecifiedAnswer)
		for _, tok := range tokens {
			if !emit(Event{Type: EventToken, Token: tok}) {
				return
			}
		}
		emit(Event{Type: EventComplete, TotalTokens: len(tokens)})
		return
	}

	if !emit(Event{Type: EventState, Message: "generating answer"}) {
		return
	}
	if !emit(Event{Type: EventCitations, Citations: hits}) {
		return
	}

	fragments, err := s.llm.CompleteStream(ctx, answerSystemPrompt, buildAnswerPrompt(query, hits))
	if err != nil {
		emit(Event{Type: EventError, Message: GenerationFailureAnswer})
		return
	}

	var answer strings.Builder
	emitted := 0
	for fragment := range fragments {
		if fragment.Err != nil {
			emit(Event{Type: EventError, Message: GenerationFailureAnswer})
			return
		}
		if !emit(Event{Type: EventToken, Token: fragment.Text}) {
			return
		}
		answer.WriteString(fragment.Text)
		emitted++
	}
	if err := ctx.Err(); err != nil {
		return
	}

	confidence := maxScore(hits)
	if !emit(Event{Type: EventComplete, TotalTokens: emitted, Citations: hits, Confidence: confidence}) {
		return
	}

	// Only a stream that reached Complete is cached.
	result := AnswerResult{
		Answer:     answer.String(),
		Citations:  hits,
		Confidence: confidence,
		Success:    true,
	}
	if data, err := json.Marshal(result); err == nil {
		s.cache.Set(ctx, key, data, s.ttl)
	} else {
		slog.WarnContext(ctx, "failed to marshal streamed answer for cache", "error", err)
	}
}

// replayCached emits a synthetic stream for a cache hit: the cached answer is
// re-tokenized on whitespace, preserving the original inter-word spacing so
// concatenating the tokens reproduces the answer byte for byte.
func (s *Service) replayCached(ctx context.Context, cached AnswerResult, out chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(Event{Type: EventState, Message: "retrieved from cache"}) {
		return
	}
	if !emit(Event{Type: EventCitations, Citations: cached.Citations}) {
		return
	}

	tokens := splitTokens(cached.Answer)
	for _, tok := range tokens {
		if !emit(Event{Type: EventToken, Token: tok}) {
			return
		}
	}

	emit(Event{
		Type:        EventComplete,
		TotalTokens: len(tokens),
		Citations:   cached.Citations,
		Confidence:  cached.Confidence,
	})
}

// splitTokens cuts s into word+trailing-whitespace segments. The segments
// concatenate back to s exactly. The scan decodes runes so multi-byte
// whitespace like NBSP never splits a token mid-character.
func splitTokens(s string) []string {
	var tokens []string
	i := 0
	for i < len(s) {
		j := i
		for j < len(s) {
			r, w := utf8.DecodeRuneInString(s[j:])
			if unicode.IsSpace(r) {
				break
			}
			j += w
		}
		for j < len(s) {
			r, w := utf8.DecodeRuneInString(s[j:])
			if !unicode.IsSpace(r) {
				break
			}
			j += w
		}
		tokens = append(tokens, s[i:j])
		i = j
	}
	return tokens
}
