package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()

	id, err := pub.Publish(context.Background(), "sessions.completed", map[string]any{"session_timestamp": int64(100)})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	id, err = pub.Publish(context.Background(), "sessions.completed", map[string]any{"session_timestamp": int64(200)})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "sessions.completed", msgs[0].Topic)
}

func TestMessagesReturnsCopy(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "sessions.completed", "payload")
	require.NoError(t, err)

	msgs := pub.Messages()
	msgs[0].Topic = "modified"
	require.Equal(t, "sessions.completed", pub.Messages()[0].Topic)
}
