package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/torocatala/dino/errors"
)

// KVOptions configures KV operation behavior.
type KVOptions struct {
	Timeout time.Duration // per-operation timeout
}

// DefaultKVOptions returns sensible defaults.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout: 5 * time.Second,
	}
}

// KVStore provides a thin typed wrapper over a JetStream KV bucket with
// per-operation timeouts and domain error mapping.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger
}

// NewKVStore wraps a KV bucket.
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  c.logger,
	}
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves the value for a key. Missing keys return
// errors.ErrKeyNotFound.
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Put creates or updates a key, last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if _, err := kv.bucket.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Keys lists all keys in the bucket.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}
