package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	keyNamespace = "ledger"
	// A WATCH abort means another transaction committed on a watched key, so
	// the budget only has to exceed the number of concurrent writers.
	defaultRedisTxAttempts = 128
)

// RedisStore keeps one collection in Redis: each document is a JSON string,
// the ids of the collection live in a set and every indexed field has one set
// per value. Transactions are optimistic (WATCH/MULTI/EXEC).
type RedisStore struct {
	client      *redis.Client
	collection  string
	maxAttempts int
}

var _ port.DocumentStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, collection string, maxAttempts int) *RedisStore {
	if maxAttempts <= 0 {
		maxAttempts = defaultRedisTxAttempts
	}
	return &RedisStore{
		client:      client,
		collection:  collection,
		maxAttempts: maxAttempts,
	}
}

func (r *RedisStore) docKey(id string) string {
	return keyNamespace + ":" + r.collection + ":doc:" + id
}

func (r *RedisStore) idsKey() string {
	return keyNamespace + ":" + r.collection + ":ids"
}

func (r *RedisStore) indexKey(field, value string) string {
	return keyNamespace + ":" + r.collection + ":idx:" + field + ":" + value
}

func (r *RedisStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	return retryTransaction(ctx, r.maxAttempts, isWatchConflict, func() error {
		return r.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{
				store:  r,
				rtx:    rtx,
				prev:   make(map[string]port.Document),
				next:   make(map[string]port.Document),
				writes: make(map[string][]byte),
			}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if len(tx.order) == 0 {
				return nil
			}

			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, id := range tx.order {
					r.queueSet(ctx, pipe, id, tx.prev[id], tx.next[id], tx.writes[id])
				}
				return nil
			})
			return err
		})
	})
}

func isWatchConflict(err error) bool {
	return errors.Is(err, redis.TxFailedErr)
}

func (r *RedisStore) queueSet(ctx context.Context, pipe redis.Pipeliner, id string, prev, next port.Document, data []byte) {
	pipe.Set(ctx, r.docKey(id), data, 0)
	pipe.SAdd(ctx, r.idsKey(), id)
	for _, field := range port.IndexedFields {
		oldValue := documentField(prev, field)
		newValue := documentField(next, field)
		if oldValue != "" && oldValue != newValue {
			pipe.SRem(ctx, r.indexKey(field, oldValue), id)
		}
		if newValue != "" {
			pipe.SAdd(ctx, r.indexKey(field, newValue), id)
		}
	}
}

func (r *RedisStore) Get(ctx context.Context, id string) (port.Document, error) {
	data, err := r.client.Get(ctx, r.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return unmarshalDocument(data)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	key := r.docKey(id)
	return retryTransaction(ctx, r.maxAttempts, isWatchConflict, func() error {
		return r.client.Watch(ctx, func(rtx *redis.Tx) error {
			data, err := rtx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return port.ErrDocumentNotFound
			}
			if err != nil {
				return err
			}
			prev, err := unmarshalDocument(data)
			if err != nil {
				return err
			}

			_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, r.idsKey(), id)
				for _, field := range port.IndexedFields {
					if v := documentField(prev, field); v != "" {
						pipe.SRem(ctx, r.indexKey(field, v), id)
					}
				}
				return nil
			})
			return err
		}, key)
	})
}

func (r *RedisStore) Where(ctx context.Context, field, value string) ([]port.Document, error) {
	if !port.IsIndexedField(field) {
		return nil, errUnsupportedField(field)
	}
	ids, err := r.client.SMembers(ctx, r.indexKey(field, value)).Result()
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", field, err)
	}
	docs, err := r.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	// The index sets are updated in the same MULTI as the documents, but a
	// document rewritten by hand can still leave a stale member behind.
	out := docs[:0]
	for _, doc := range docs {
		if documentField(doc, field) == value {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *RedisStore) Scan(ctx context.Context) ([]port.Document, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	return r.fetch(ctx, ids)
}

func (r *RedisStore) fetch(ctx context.Context, ids []string) ([]port.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget documents: %w", err)
	}

	out := make([]port.Document, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		doc, err := unmarshalDocument([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type redisTx struct {
	store  *RedisStore
	rtx    *redis.Tx
	prev   map[string]port.Document
	next   map[string]port.Document
	writes map[string][]byte
	order  []string
}

func (tx *redisTx) Get(ctx context.Context, id string) (port.Document, error) {
	if data, ok := tx.writes[id]; ok {
		return unmarshalDocument(data)
	}
	doc, err := tx.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, port.ErrDocumentNotFound
	}
	return doc, nil
}

// load watches id and reads its committed value; a missing document is
// remembered as nil so that Set knows there is no index entry to drop.
func (tx *redisTx) load(ctx context.Context, id string) (port.Document, error) {
	if doc, ok := tx.prev[id]; ok {
		return doc, nil
	}

	key := tx.store.docKey(id)
	if err := tx.rtx.Watch(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("watch %s: %w", id, err)
	}
	data, err := tx.rtx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		tx.prev[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	doc, err := unmarshalDocument(data)
	if err != nil {
		return nil, err
	}
	tx.prev[id] = doc
	return doc, nil
}

func (tx *redisTx) Set(ctx context.Context, id string, doc port.Document) error {
	if _, err := tx.load(ctx, id); err != nil {
		return err
	}
	data, err := marshalDocument(doc)
	if err != nil {
		return err
	}
	if _, ok := tx.writes[id]; !ok {
		tx.order = append(tx.order, id)
	}
	tx.writes[id] = data
	tx.next[id] = doc
	return nil
}
