package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-ledger/internal/port"
)

func newMiniRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	store, _ := newMiniRedis(t)
	return store
}

func newMiniRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, "inventory_ledgers", 0), mr
}

// getRedisStore connects to a live server at REDIS_ADDR.
func getRedisStore(t *testing.T) *RedisStore {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available: %v", err)
	}

	collection := "test-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := rdb.Keys(ctx, keyNamespace+":"+collection+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
		rdb.Close()
	})
	return NewRedisStore(rdb, collection, 0)
}

func TestRedisIndexSets(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniRedis(t)

	set := func(pb string) {
		require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
			return tx.Set(ctx, "doc1", port.Document{
				fieldID:                 "doc1",
				fieldTokenBlueprintID:   "tb1",
				fieldProductBlueprintID: pb,
			})
		}))
	}

	set("pb1")
	members, err := mr.Members(store.indexKey(port.FieldProductBlueprintID, "pb1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, members)

	set("pb2")
	assert.False(t, mr.Exists(store.indexKey(port.FieldProductBlueprintID, "pb1")), "old index entry is dropped")
	members, err = mr.Members(store.indexKey(port.FieldProductBlueprintID, "pb2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, members)

	require.NoError(t, store.Delete(ctx, "doc1"))
	assert.False(t, mr.Exists(store.docKey("doc1")))
	assert.False(t, mr.Exists(store.idsKey()))
	assert.False(t, mr.Exists(store.indexKey(port.FieldTokenBlueprintID, "tb1")))
}

func TestRedisWhereSkipsStaleIndexMembers(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniRedis(t)

	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.Set(ctx, "doc1", port.Document{fieldID: "doc1", fieldTokenBlueprintID: "tb1"})
	}))
	// A member whose document disappeared outside the store.
	_, err := mr.SAdd(store.indexKey(port.FieldTokenBlueprintID, "tb1"), "ghost")
	require.NoError(t, err)

	docs, err := store.Where(ctx, port.FieldTokenBlueprintID, "tb1")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, collectIDs(docs))
}

func TestRedisDeleteUnderContention(t *testing.T) {
	ctx := context.Background()
	store, _ := newMiniRedis(t)

	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.Set(ctx, "doc1", port.Document{fieldID: "doc1", "n": 0})
	}))

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Delete(ctx, "doc1")
		}()
	}
	wg.Wait()
	close(results)

	deleted := 0
	for err := range results {
		if err == nil {
			deleted++
			continue
		}
		assert.ErrorIs(t, err, port.ErrDocumentNotFound)
	}
	assert.Equal(t, 1, deleted)
}

func TestRedisConflictBudget(t *testing.T) {
	ctx := context.Background()
	store, mr := newMiniRedis(t)
	store.maxAttempts = 3
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()

	attempts := 0
	err := store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		attempts++
		if _, err := tx.Get(ctx, "doc1"); err != nil && !errors.Is(err, port.ErrDocumentNotFound) {
			return err
		}
		// Another client writes the watched key before EXEC.
		require.NoError(t, other.Set(ctx, store.docKey("doc1"), `{"id":"doc1"}`, 0).Err())
		return tx.Set(ctx, "doc1", port.Document{fieldID: "doc1"})
	})

	assert.ErrorIs(t, err, port.ErrTxConflict)
	assert.ErrorIs(t, err, redis.TxFailedErr)
	assert.Equal(t, 3, attempts)
}

func TestRedisKeys(t *testing.T) {
	store := NewRedisStore(nil, "inventory_ledgers", 0)

	assert.Equal(t, "ledger:inventory_ledgers:doc:prod1__tok1", store.docKey("prod1__tok1"))
	assert.Equal(t, "ledger:inventory_ledgers:ids", store.idsKey())
	assert.Equal(t, "ledger:inventory_ledgers:idx:tokenBlueprintId:tok1", store.indexKey("tokenBlueprintId", "tok1"))
	assert.Equal(t, defaultRedisTxAttempts, store.maxAttempts)
}
