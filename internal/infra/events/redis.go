package events

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/Builder-Lawyers/site-provisioner/internal/infra/config"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes ledger changes so every API replica can wake its own
// stream subscribers.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

func NewRedisNotifier(client *redis.Client, channel string, hub *Hub) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, hub: hub}
}

// Notify publishes the id; on publish failure the local hub is still woken.
func (n *RedisNotifier) Notify(ctx context.Context, installationID uint64) {
	err := n.client.Publish(ctx, n.channel, strconv.FormatUint(installationID, 10)).Err()
	if err != nil {
		slog.Warn("publish ledger change", "installationID", installationID, "err", err)
		n.hub.Notify(ctx, installationID)
	}
}

// Run forwards published changes into the hub until ctx is done.
func (n *RedisNotifier) Run(ctx context.Context) error {
	pubsub := n.client.Subscribe(ctx, n.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			id, err := strconv.ParseUint(msg.Payload, 10, 64)
			if err != nil {
				slog.Warn("ignoring malformed ledger change", "payload", msg.Payload)
				continue
			}
			n.hub.Notify(ctx, id)
		}
	}
}
