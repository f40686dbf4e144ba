package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestConsumer_PoisonPill(t *testing.T) {
	o, _, _, docs, _, _ := newTestOrchestrator()
	c := NewConsumer(o)

	// Invalid JSON must not be requeued.
	err := c.HandleMessage(nsq.NewMessage(nsq.MessageID{}, []byte("{invalid")))
	assert.NoError(t, err)

	// Missing ids are dropped the same way.
	body, _ := json.Marshal(TaskPayload{Text: "some text"})
	err = c.HandleMessage(nsq.NewMessage(nsq.MessageID{}, body))
	assert.NoError(t, err)

	docs.AssertNotCalled(t, "StartRun", mock.Anything, mock.Anything)
}

func TestConsumer_EmptyBody(t *testing.T) {
	o, _, _, _, _, _ := newTestOrchestrator()
	c := NewConsumer(o)

	err := c.HandleMessage(nsq.NewMessage(nsq.MessageID{}, nil))
	assert.NoError(t, err)
}

func TestConsumer_RunFailureIsNotRequeued(t *testing.T) {
	o, _, _, docs, _, _ := newTestOrchestrator()
	c := NewConsumer(o)

	docs.On("StartRun", mock.Anything, "doc-1").Return(nil)
	docs.On("UpdateProgress", mock.Anything, "doc-1", mock.Anything, mock.Anything).Return(nil)
	docs.On("MarkFailed", mock.Anything, "doc-1", mock.Anything).Return(nil)

	body, _ := json.Marshal(TaskPayload{DocumentID: "doc-1", DomainID: "catan", Text: "  "})
	err := c.HandleMessage(nsq.NewMessage(nsq.MessageID{}, body))

	// The orchestrator already persisted the failed status; requeueing would
	// just re-fail.
	assert.NoError(t, err)
	docs.AssertCalled(t, "MarkFailed", mock.Anything, "doc-1", mock.Anything)
}

func TestConsumer_DuplicateRunRejected(t *testing.T) {
	o, _, _, docs, _, registry := newTestOrchestrator()
	c := NewConsumer(o)

	_, ok := registry.Begin(context.Background(), "doc-1")
	assert.True(t, ok)

	body, _ := json.Marshal(TaskPayload{DocumentID: "doc-1", DomainID: "catan", Text: "text"})
	err := c.HandleMessage(nsq.NewMessage(nsq.MessageID{}, body))

	assert.NoError(t, err)
	docs.AssertNotCalled(t, "StartRun", mock.Anything, mock.Anything)
	docs.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}
