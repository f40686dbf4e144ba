package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressSnapshot_MidRun(t *testing.T) {
	started := time.Now().Add(-30 * time.Second)
	doc := &Document{
		ID:        "doc-1",
		Status:    StatusEmbedding,
		Progress:  60,
		PageCount: 10,
		StartedAt: &started,
	}

	p := doc.ProgressSnapshot(time.Now())

	assert.Equal(t, "embedding", p.Step)
	assert.Equal(t, 60, p.Percent)
	assert.Equal(t, 6, p.PagesProcessed)
	assert.Equal(t, 10, p.PagesTotal)
	assert.InDelta(t, 30, p.ElapsedSeconds, 1)
	// 60% took ~30s, so the remaining 40% extrapolates to ~20s.
	assert.InDelta(t, 20, p.EstRemainingSeconds, 1)
}

func TestProgressSnapshot_NotStarted(t *testing.T) {
	doc := &Document{ID: "doc-1", Status: StatusPending}

	p := doc.ProgressSnapshot(time.Now())

	assert.Equal(t, "pending", p.Step)
	assert.Zero(t, p.ElapsedSeconds)
	assert.Zero(t, p.EstRemainingSeconds)
}

func TestProgressSnapshot_TerminalUsesCompletedAt(t *testing.T) {
	started := time.Now().Add(-time.Hour)
	completed := started.Add(45 * time.Second)
	doc := &Document{
		ID:          "doc-1",
		Status:      StatusCompleted,
		Progress:    100,
		PageCount:   10,
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	p := doc.ProgressSnapshot(time.Now())

	// Elapsed is frozen at completion; no estimate for a finished run.
	assert.InDelta(t, 45, p.ElapsedSeconds, 0.01)
	assert.Zero(t, p.EstRemainingSeconds)
	assert.Equal(t, 10, p.PagesProcessed)
}

func TestProgressSnapshot_FailedCarriesError(t *testing.T) {
	started := time.Now().Add(-10 * time.Second)
	completed := time.Now()
	doc := &Document{
		ID:          "doc-1",
		Status:      StatusFailed,
		Progress:    60,
		Error:       "ingestion cancelled",
		StartedAt:   &started,
		CompletedAt: &completed,
	}

	p := doc.ProgressSnapshot(time.Now())

	assert.Equal(t, "failed", p.Step)
	assert.Equal(t, "ingestion cancelled", p.Error)
	assert.Zero(t, p.EstRemainingSeconds)
}

func TestTerminal(t *testing.T) {
	assert.True(t, (&Document{Status: StatusCompleted}).Terminal())
	assert.True(t, (&Document{Status: StatusFailed}).Terminal())
	assert.False(t, (&Document{Status: StatusEmbedding}).Terminal())
	assert.False(t, (&Document{Status: StatusPending}).Terminal())
}
