// Package redis provides an event channel backed by Redis lists, for deployments that
// already run Redis and do not want a Kafka cluster.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix    = "casework:"
	defaultBlockTimeout = time.Second
	retryDelay          = time.Second
)

// envelope is the list entry format of a watermill message.
type envelope struct {
	UUID     string            `json:"uuid"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

func encode(msg *message.Message) ([]byte, error) {
	return json.Marshal(envelope{UUID: msg.UUID, Metadata: msg.Metadata, Payload: msg.Payload})
}

func decode(data []byte) (*message.Message, error) {
	var env envelope

	err := json.Unmarshal(data, &env)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	msg := message.NewMessage(env.UUID, env.Payload)
	for k, v := range env.Metadata {
		msg.Metadata.Set(k, v)
	}

	return msg, nil
}

// channel holds the client shared by the publisher and the subscriber. The client is
// closed once both of them are.
type channel struct {
	client  redis.UniversalClient
	prefix  string
	closing chan struct{}

	mu   sync.Mutex
	refs int
}

func (c *channel) key(topic string) string {
	return c.prefix + topic
}

func (c *channel) release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		return nil
	}

	c.refs--
	if c.refs > 0 {
		return nil
	}

	return c.client.Close()
}

// CreateChannel connects to the Redis server at url and returns a publisher and a subscriber
// sharing the connection.
func CreateChannel(ctx context.Context, logger watermill.LoggerAdapter, url string) (*Publisher, *Subscriber, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	pub, sub := NewChannel(client, logger, defaultKeyPrefix)

	return pub, sub, nil
}

// NewChannel wraps an existing client. Keys are the topic names prefixed with prefix.
func NewChannel(client redis.UniversalClient, logger watermill.LoggerAdapter, prefix string) (*Publisher, *Subscriber) {
	c := &channel{client: client, prefix: prefix, closing: make(chan struct{}), refs: 2}

	return &Publisher{channel: c, logger: logger},
		&Subscriber{channel: c, logger: logger, blockTimeout: defaultBlockTimeout}
}

// Publisher appends messages to the list of their topic.
type Publisher struct {
	*channel

	logger    watermill.LoggerAdapter
	closeOnce sync.Once
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		data, err := encode(msg)
		if err != nil {
			return fmt.Errorf("failed to encode message %s: %w", msg.UUID, err)
		}

		ctx := msg.Context()

		err = p.client.RPush(ctx, p.key(topic), data).Err()
		if err != nil {
			return fmt.Errorf("failed to push message %s: %w", msg.UUID, err)
		}

		p.logger.Trace("Message pushed", watermill.LogFields{"topic": topic, "uuid": msg.UUID})
	}

	return nil
}

func (p *Publisher) Close() error {
	var err error

	p.closeOnce.Do(func() {
		err = p.release()
	})

	return err
}

// Subscriber pops messages from the list of a topic. A nacked message is pushed back to
// the head of the list for redelivery.
type Subscriber struct {
	*channel

	logger       watermill.LoggerAdapter
	blockTimeout time.Duration
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, errors.New("subscriber closed")
	default:
	}

	out := make(chan *message.Message)

	s.wg.Add(1)

	go s.consume(ctx, topic, out)

	return out, nil
}

func (s *Subscriber) consume(ctx context.Context, topic string, out chan<- *message.Message) {
	defer s.wg.Done()
	defer close(out)

	key := s.key(topic)
	fields := watermill.LogFields{"topic": topic}

	for {
		select {
		case <-s.closing:
			return
		case <-ctx.Done():
			return
		default:
		}

		result, err := s.client.BLPop(ctx, s.blockTimeout, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			if !s.wait(ctx, retryDelay) {
				return
			}

			s.logger.Error("Failed to pop message", err, fields)

			continue
		}

		if len(result) < 2 {
			continue
		}

		msg, err := decode([]byte(result[1]))
		if err != nil {
			s.logger.Error("Dropping malformed message", err, fields)

			continue
		}

		if !s.deliver(ctx, key, msg, out) {
			return
		}
	}
}

// deliver hands msg to the consumer and waits for its acknowledgement. It reports false
// when the subscriber is shutting down.
func (s *Subscriber) deliver(ctx context.Context, key string, msg *message.Message, out chan<- *message.Message) bool {
	msgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msg.SetContext(msgCtx)

	select {
	case out <- msg:
	case <-s.closing:
		s.requeue(key, msg)

		return false
	case <-ctx.Done():
		s.requeue(key, msg)

		return false
	}

	select {
	case <-msg.Acked():
		return true
	case <-msg.Nacked():
		s.requeue(key, msg)

		return true
	case <-s.closing:
		s.requeue(key, msg)

		return false
	case <-ctx.Done():
		s.requeue(key, msg)

		return false
	}
}

func (s *Subscriber) requeue(key string, msg *message.Message) {
	data, err := encode(msg)
	if err != nil {
		s.logger.Error("Failed to encode message for redelivery", err, watermill.LogFields{"uuid": msg.UUID})

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = s.client.LPush(ctx, key, data).Err()
	if err != nil {
		s.logger.Error("Failed to requeue message", err, watermill.LogFields{"uuid": msg.UUID})
	}
}

// wait sleeps for d and reports false when the subscriber stopped meanwhile.
func (s *Subscriber) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.closing:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close stops the consumers, waiting for in-flight messages to be requeued.
func (s *Subscriber) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.closing)
		s.wg.Wait()

		err = s.release()
	})

	return err
}
