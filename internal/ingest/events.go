package ingest

// TaskTopic is the NSQ topic ingestion tasks are published to.
const TaskTopic = "ingest.task"

// TaskPayload is the wire format of one scheduled pipeline run.
type TaskPayload struct {
	DocumentID    string `json:"document_id"`
	DomainID      string `json:"domain_id"`
	Text          string `json:"text"`
	ChunkSize     int    `json:"chunk_size,omitempty"`
	Overlap       int    `json:"overlap,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
