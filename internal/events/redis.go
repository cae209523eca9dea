package events

import (
	"context"
	"fmt"

	"github.com/oggyb/speeddate/internal/cache"
)

// RedisPublisher publishes each event on the channel of every recipient.
type RedisPublisher struct {
	cache *cache.RedisCache
}

func NewRedisPublisher(c *cache.RedisCache) *RedisPublisher {
	return &RedisPublisher{cache: c}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := Encode(e)
	if err != nil {
		return err
	}
	for _, u := range e.UserIDs {
		if err := p.cache.Publish(ctx, p.cache.KeyForEvents(u), payload); err != nil {
			return fmt.Errorf("publish %s to %s: %w", e.Kind, u, err)
		}
	}
	return nil
}

// Watch subscribes to userID's channel and calls fn for every decoded
// event until ctx is done. Undecodable payloads are passed to onErr.
func Watch(ctx context.Context, c *cache.RedisCache, userID string, fn func(Event), onErr func(error)) error {
	sub := c.Subscribe(ctx, c.KeyForEvents(userID))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, err := Decode([]byte(msg.Payload))
			if err != nil {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			fn(e)
		}
	}
}
