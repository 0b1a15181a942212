package counter

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const webhookCountersKey = "billing:counters:webhooks"

// WebhookCount is the number of deliveries seen for one event type and result.
type WebhookCount struct {
	EventType string `json:"event_type"`
	Result    string `json:"result"`
	Count     int64  `json:"count"`
}

// Counters keeps cumulative webhook delivery counters in a Redis hash.
type Counters struct {
	client *redis.Client
}

func New(client *redis.Client) *Counters {
	return &Counters{client: client}
}

// AddWebhook increments the counter for eventType with result
// (applied, skipped, failed, duplicate, rejected).
func (c *Counters) AddWebhook(ctx context.Context, eventType, result string) error {
	if eventType == "" {
		eventType = "unknown"
	}
	return c.client.HIncrBy(ctx, webhookCountersKey, eventType+"|"+result, 1).Err()
}

// Webhooks returns all counters ordered by event type, then result.
func (c *Counters) Webhooks(ctx context.Context) ([]WebhookCount, error) {
	data, err := c.client.HGetAll(ctx, webhookCountersKey).Result()
	if err != nil {
		return nil, err
	}

	counts := make([]WebhookCount, 0, len(data))
	for field, raw := range data {
		eventType, result, ok := strings.Cut(field, "|")
		if !ok {
			continue
		}
		n, err := parseCount(raw)
		if err != nil {
			continue
		}
		counts = append(counts, WebhookCount{EventType: eventType, Result: result, Count: n})
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].EventType != counts[j].EventType {
			return counts[i].EventType < counts[j].EventType
		}
		return counts[i].Result < counts[j].Result
	})
	return counts, nil
}

// Reset drops all webhook counters.
func (c *Counters) Reset(ctx context.Context) error {
	return c.client.Del(ctx, webhookCountersKey).Err()
}

func parseCount(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
