package document

import (
	"time"
)

// Pipeline statuses. A document moves strictly forward through these within
// one run; completed and failed are terminal.
const (
	StatusPending    = "pending"
	StatusExtracting = "extracting"
	StatusChunking   = "chunking"
	StatusEmbedding  = "embedding"
	StatusIndexing   = "indexing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document is one uploaded rulebook text awaiting or finished with ingestion.
// Only the ingestion pipeline mutates status and progress.
type Document struct {
	ID          string     `json:"id"`
	DomainID    string     `json:"domain_id"`
	StorageRef  string     `json:"storage_ref,omitempty"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	PageCount   int        `json:"page_count"`
	CharCount   int        `json:"char_count"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Terminal reports whether the document's pipeline run has finished.
func (d *Document) Terminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusFailed
}

// ProcessingProgress is the caller-facing view of an ingestion run, recomputed
// from the persisted document record on every read.
type ProcessingProgress struct {
	DocumentID          string     `json:"document_id"`
	Step                string     `json:"step"`
	Percent             int        `json:"percent"`
	ElapsedSeconds      float64    `json:"elapsed_seconds"`
	EstRemainingSeconds float64    `json:"est_remaining_seconds"`
	PagesProcessed      int        `json:"pages_processed"`
	PagesTotal          int        `json:"pages_total"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	Error               string     `json:"error,omitempty"`
}

// ProgressSnapshot derives the progress view at time now. The remaining-time
// estimate extrapolates linearly from elapsed time and percent done.
func (d *Document) ProgressSnapshot(now time.Time) ProcessingProgress {
	p := ProcessingProgress{
		DocumentID:  d.ID,
		Step:        d.Status,
		Percent:     d.Progress,
		PagesTotal:  d.PageCount,
		StartedAt:   d.StartedAt,
		CompletedAt: d.CompletedAt,
		Error:       d.Error,
	}

	if d.PageCount > 0 {
		p.PagesProcessed = d.PageCount * d.Progress / 100
	}

	if d.StartedAt == nil {
		return p
	}

	end := now
	if d.CompletedAt != nil {
		end = *d.CompletedAt
	}
	p.ElapsedSeconds = end.Sub(*d.StartedAt).Seconds()

	if !d.Terminal() && d.Progress > 0 && d.Progress < 100 {
		p.EstRemainingSeconds = p.ElapsedSeconds * float64(100-d.Progress) / float64(d.Progress)
	}

	return p
}
