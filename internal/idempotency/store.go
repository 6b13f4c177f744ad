// Package idempotency stores the outcome of mutating requests in Redis so a
// retried request with the same Idempotency-Key replays the first response
// instead of moving money twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const pendingMarker = "pending"

// ErrInFlight is returned when another request holds the key.
var ErrInFlight = errors.New("request with this idempotency key is still in progress")

// Record is a stored response and the fingerprint of the request that
// produced it.
type Record struct {
	Fingerprint string          `json:"fingerprint,omitempty"`
	Status      int             `json:"status"`
	ContentType string          `json:"contentType,omitempty"`
	Body        json.RawMessage `json:"body"`
}

// Fingerprint identifies a request by method, path and body.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func Key(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// Begin claims key for scope. It returns the stored record when the key
// already completed, ErrInFlight when it is held, or nil when the caller now
// owns the key and must Complete or Release it.
func (s *Store) Begin(ctx context.Context, scope, key string) (*Record, error) {
	k := Key(scope, key)

	claimed, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if claimed {
		return nil, nil
	}

	data, err := s.client.Get(ctx, k).Result()
	if err == redis.Nil || data == pendingMarker {
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

// Complete stores the response for replay.
func (s *Store) Complete(ctx context.Context, scope, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, Key(scope, key), string(data), s.ttl).Err()
}

// Release frees the key so the request can be retried.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	return s.client.Del(ctx, Key(scope, key)).Err()
}
