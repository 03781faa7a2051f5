package redis

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	msg := message.NewMessage("msg-1", []byte(`{"case_id":"c1"}`))
	msg.Metadata.Set("event_type", "case.created")

	data, err := encode(msg)
	require.NoError(t, err)

	decoded, err := decode(data)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", decoded.UUID)
	assert.Equal(t, "case.created", decoded.Metadata.Get("event_type"))
	assert.JSONEq(t, `{"case_id":"c1"}`, string(decoded.Payload))

	_, err = decode([]byte("not json"))
	assert.Error(t, err)
}

func TestCreateChannel_InvalidURL(t *testing.T) {
	_, _, err := CreateChannel(t.Context(), watermill.NopLogger{}, "http://localhost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestChannel_Close(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	pub, sub := NewChannel(client, watermill.NopLogger{}, "test:")

	assert.Equal(t, "test:casework.events", sub.key("casework.events"))

	messages, err := sub.Subscribe(t.Context(), "casework.events")
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	require.NoError(t, sub.Close())

	select {
	case _, open := <-messages:
		assert.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	_, err = sub.Subscribe(t.Context(), "casework.events")
	assert.Error(t, err)
}
