package ledger

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/mangaverse/backend/internal/models"
)

// DefaultExportQueue is the Redis list consumed by observability collaborators.
const DefaultExportQueue = "ledger_export"

// RedisExporter appends entries as JSON to a Redis list.
type RedisExporter struct {
	client *redis.Client
	key    string
}

func NewRedisExporter(client *redis.Client, key string) *RedisExporter {
	if key == "" {
		key = DefaultExportQueue
	}
	return &RedisExporter{client: client, key: key}
}

func (e *RedisExporter) Name() string { return "redis" }

func (e *RedisExporter) Export(ctx context.Context, entries []models.LedgerEntry) error {
	values := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		values = append(values, string(data))
	}
	return e.client.RPush(ctx, e.key, values...).Err()
}
