package cache

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvalidator(t *testing.T, nodeID, subject string) *NATSInvalidator {
	t.Helper()

	inv, err := NewNATSInvalidator(&InvalidatorConfig{
		NATSURL:       nats.DefaultURL,
		Subject:       subject,
		MaxReconnects: 1,
	}, nodeID)
	if err != nil {
		t.Skipf("NATS not available, skipping test: %v", err)
	}
	t.Cleanup(func() { inv.Close() })
	return inv
}

func TestNewNATSInvalidator_RequiresNodeID(t *testing.T) {
	_, err := NewNATSInvalidator(&InvalidatorConfig{NATSURL: nats.DefaultURL}, "")
	assert.Error(t, err)
}

func TestNATSInvalidator_DeliversToOtherNodes(t *testing.T) {
	subject := "test.chunk.invalidate." + time.Now().Format("150405.000000000")
	a := newTestInvalidator(t, "node-a", subject)
	b := newTestInvalidator(t, "node-b", subject)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 4)
	handler := func(key string) error {
		received <- key
		return nil
	}
	require.NoError(t, a.SubscribeInvalidations(ctx, handler))
	require.NoError(t, b.SubscribeInvalidations(ctx, func(key string) error {
		t.Errorf("node-b received its own invalidation: %s", key)
		return nil
	}))

	require.NoError(t, b.PublishInvalidation(ctx, "chunk:1:2:3"))
	require.NoError(t, b.PublishInvalidation(ctx, "chunk:1:2:3"))

	for i := 0; i < 2; i++ {
		select {
		case key := <-received:
			assert.Equal(t, "chunk:1:2:3", key)
		case <-time.After(2 * time.Second):
			t.Fatal("invalidation not delivered")
		}
	}

	assert.Equal(t, int64(2), b.Stats().Published)
	assert.Error(t, a.SubscribeInvalidations(ctx, handler))
}

func TestNATSInvalidator_CloseIsIdempotent(t *testing.T) {
	inv := newTestInvalidator(t, "node-close", "test.chunk.close")
	require.NoError(t, inv.SubscribeInvalidations(context.Background(), func(string) error { return nil }))

	assert.NoError(t, inv.Close())
	assert.NoError(t, inv.Close())
}
