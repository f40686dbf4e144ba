package engine

import (
	"fmt"
	"strings"
)

// Fixed answer texts. These are contracts with callers and tests: sentinel
// answers are recognizable strings, not errors.
const (
	// PromptForInput is returned for empty queries, before any downstream call.
	PromptForInput = "Please enter a question about the rules."

	// NotSpecifiedAnswer is returned when the knowledge base has no relevant
	// chunks for a question.
	NotSpecifiedAnswer = "This is not specified in the rulebook."

	// NoTopicInfoAnswer is Explain's distinct no-results sentinel.
	NoTopicInfoAnswer = "No relevant information about the topic was found in the rulebook."

	// UncertaintySentinel is the exact string the model is instructed to emit
	// when the supplied context does not answer the question.
	UncertaintySentinel = "Not specified in the provided rules."

	// GenericFailureAnswer covers upstream failures before retrieval produced
	// anything useful.
	GenericFailureAnswer = "Sorry, something went wrong while answering your question. Please try again."

	// GenerationFailureAnswer covers LLM failures after retrieval succeeded;
	// citations are still returned alongside it.
	GenerationFailureAnswer = "Sorry, I could not generate an answer right now. The cited rulebook sections may still help."
)

// answerSystemPrompt bounds generation to the supplied context. The model
// must never use outside knowledge and must emit the uncertainty sentinel
// verbatim when the context is insufficient.
var answerSystemPrompt = fmt.Sprintf(`You are a board game rules assistant.
Answer the question using ONLY the rulebook excerpts provided in the context.
Do not use outside knowledge and do not invent rules.
If the excerpts do not contain the answer, reply with exactly: %q
Reference the page numbers of the excerpts you rely on.`, UncertaintySentinel)

// explainSystemPrompt is the teaching variant used by Explain.
var explainSystemPrompt = fmt.Sprintf(`You are a board game rules teacher.
Write a spoken-style explanation script for the requested topic using ONLY the
rulebook excerpts provided in the context.
Do not use outside knowledge and do not invent rules.
If the excerpts do not cover the topic, reply with exactly: %q
Reference the page numbers of the excerpts you rely on.`, UncertaintySentinel)

// buildContext renders retrieved chunks into the user prompt, page-tagged so
// the model can cite them.
func buildContext(hits []Hit) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Page %d] %s", h.Page, h.Content)
	}
	return b.String()
}

func buildAnswerPrompt(query string, hits []Hit) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", buildContext(hits), query)
}

func buildExplainPrompt(topic string, hits []Hit) string {
	return fmt.Sprintf("Context:\n%s\n\nTopic to explain: %s", buildContext(hits), topic)
}
