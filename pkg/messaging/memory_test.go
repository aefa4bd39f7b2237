package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_PublishSubscribe(t *testing.T) {
	b := NewMemoryBroker(4)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "appointments")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "appointments", map[string]string{"type": "AppointmentCreated"}))
	require.NoError(t, b.Publish(ctx, "other", "ignored"))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"AppointmentCreated"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	assert.Empty(t, ch)
}

func TestMemoryBroker_UnsubscribeOnCancel(t *testing.T) {
	b := NewMemoryBroker(1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "appointments")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryBroker_Closed(t *testing.T) {
	b := NewMemoryBroker(1)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "x", 1), ErrClosed)
	_, err := b.Subscribe(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEncode_PassesRawThrough(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	got, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), got)

	got, err = Encode(struct{ A int }{A: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":2}`, string(got))
}
