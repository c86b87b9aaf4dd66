package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/housing-queue/internal/model"
)

// DefaultStream имя потока Redis, из которого читает система доставки.
const DefaultStream = "housing:notifications"

const streamMaxLen = 100000

// RedisNotifier публикует уведомления в поток Redis.
type RedisNotifier struct {
	client *redis.Client
	stream string
}

// NewRedisNotifier создаёт клиента Redis и проверяет соединение.
func NewRedisNotifier(ctx context.Context, addr string) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisNotifierWithClient(client, DefaultStream), nil
}

// NewRedisNotifierWithClient использует готового клиента Redis.
func NewRedisNotifierWithClient(client *redis.Client, stream string) *RedisNotifier {
	return &RedisNotifier{client: client, stream: stream}
}

// Notify добавляет уведомление в поток.
func (r *RedisNotifier) Notify(ctx context.Context, n model.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"kind":               string(n.Kind),
			"application_number": n.ApplicationNumber,
			"payload":            string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}

	return nil
}

// Close закрывает соединение с Redis.
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
