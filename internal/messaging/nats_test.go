package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := LogPublisher{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	err := p.Publish(context.Background(), "ticket.issued", map[string]string{"ticket_id": "t-1"})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ticket.issued", entry["subject"])
	assert.Contains(t, entry["payload"], `"ticket_id":"t-1"`)
}

func TestLogPublisherRejectsUnmarshalable(t *testing.T) {
	err := LogPublisher{}.Publish(context.Background(), "x", make(chan int))
	assert.Error(t, err)
}
