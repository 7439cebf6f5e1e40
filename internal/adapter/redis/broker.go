package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cwygoda/catchbot/internal/config"
	"github.com/cwygoda/catchbot/internal/domain"
)

// backlogSize bounds how many undelivered links the subscriber buffers while
// the worker is busy with a download.
const backlogSize = 1024

// NewClient creates a pooled Redis client from config.
func NewClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Publisher implements domain.Publisher using Redis PUBLISH.
type Publisher struct {
	client  *goredis.Client
	channel string
}

// NewPublisher creates a publisher for channel.
func NewPublisher(client *goredis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish sends the link as the raw message payload and returns the number
// of subscribers that received it.
func (p *Publisher) Publish(ctx context.Context, link domain.Link) (int64, error) {
	n, err := p.client.Publish(ctx, p.channel, link.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return n, nil
}

// Subscriber implements domain.JobSource using Redis SUBSCRIBE.
type Subscriber struct {
	client  *goredis.Client
	channel string

	mu sync.Mutex
	ps *goredis.PubSub
}

// NewSubscriber creates a subscriber for channel.
func NewSubscriber(client *goredis.Client, channel string) *Subscriber {
	return &Subscriber{client: client, channel: channel}
}

// Jobs subscribes and streams message payloads. It returns once the broker
// has confirmed the subscription.
func (s *Subscriber) Jobs(ctx context.Context) (<-chan []byte, error) {
	ps := s.client.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}

	s.mu.Lock()
	s.ps = ps
	s.mu.Unlock()

	msgs := ps.Channel(goredis.WithChannelSize(backlogSize))
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close ends the subscription.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ps == nil {
		return nil
	}
	err := s.ps.Close()
	s.ps = nil
	return err
}
