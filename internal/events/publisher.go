// Package events carries the two fire-and-forget notifications the
// ingester emits: a new domain was registered, a new page was accepted.
// Delivery is not required for correctness (spec.md §4.5.1).
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher is the contract the ingester consumes.
type Publisher interface {
	Publish(ctx context.Context, payload []byte)
}

type newDomainEvent struct {
	Type      string `json:"type"`
	DomainURL string `json:"domainUrl"`
}

type newPageEvent struct {
	Type    string `json:"type"`
	PageURL string `json:"pageUrl"`
}

// NewDomainPayload builds the {"type":"new-domain",...} message body.
func NewDomainPayload(domainURL string) []byte {
	b, _ := json.Marshal(newDomainEvent{Type: "new-domain", DomainURL: domainURL})
	return b
}

// NewPagePayload builds the {"type":"new-page",...} message body.
func NewPagePayload(pageURL string) []byte {
	b, _ := json.Marshal(newPageEvent{Type: "new-page", PageURL: pageURL})
	return b
}

// LogPublisher logs the event and moves on — the default, matching the
// teacher's fire-and-forget style for advisory signals that have no
// required subscriber.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "publisher")}
}

func (p *LogPublisher) Publish(_ context.Context, payload []byte) {
	p.logger.Debug("event published", "payload", string(payload))
}

// RedisPublisher publishes to a Redis Pub/Sub channel so a real
// subscriber can react to new-domain/new-page events. Errors are logged
// and swallowed — publishing is advisory, never part of the ingest
// transaction.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, logger: logger.With("component", "publisher")}
}

func (p *RedisPublisher) Publish(ctx context.Context, payload []byte) {
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("event publish failed", "channel", p.channel, "error", err)
	}
}
