package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChangeChannelPrefix prefixes the Redis pub/sub channel of each collection.
const DefaultChangeChannelPrefix = "factoryops:changes:"

// ChangeNotifier receives collection change signals relayed from the feed.
type ChangeNotifier interface {
	Notify(collection string)
}

// RedisChangeFeed distributes commit signals between API processes so every
// process's live queries observe writes made by the others.
type RedisChangeFeed struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisChangeFeed constructs the feed.
func NewRedisChangeFeed(client *redis.Client, prefix string, logger *zap.Logger) *RedisChangeFeed {
	if prefix == "" {
		prefix = DefaultChangeChannelPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisChangeFeed{client: client, prefix: prefix, logger: logger}
}

// Publish announces a change on collection.
func (f *RedisChangeFeed) Publish(ctx context.Context, collection string) error {
	if err := f.client.Publish(ctx, f.prefix+collection, collection).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", collection, err)
	}
	return nil
}

// Listen relays change signals to notifier until ctx is cancelled.
func (f *RedisChangeFeed) Listen(ctx context.Context, notifier ChangeNotifier) error {
	pubsub := f.client.PSubscribe(ctx, f.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	ch := pubsub.Channel()
	f.logger.Info("change feed listening", zap.String("pattern", f.prefix+"*"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			collection := strings.TrimPrefix(msg.Channel, f.prefix)
			notifier.Notify(collection)
		}
	}
}
