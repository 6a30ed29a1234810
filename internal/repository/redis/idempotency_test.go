package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIdemCheckout(t *testing.T) {
	eventID := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	key := KeyIdemCheckout(eventID, "abc")

	assert.Equal(t, "tickethub:v1:idem:checkout:11111111-2222-3333-4444-555555555555:abc", key)
}

func TestIdempotencyStore_AcquireLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(db, 2*time.Hour)

	mock.ExpectSetNX("k1", "LOCK", time.Minute).SetVal(true)

	ok, err := store.AcquireLock(context.Background(), "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectSetNX("k1", "LOCK", time.Minute).SetVal(false)

	ok, err = store.AcquireLock(context.Background(), "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_SaveAndGetResult(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(db, 2*time.Hour)

	mock.ExpectSet("k1", `RES:{"order_id":"x"}`, 2*time.Hour).SetVal("OK")
	require.NoError(t, store.SaveResult(context.Background(), "k1", `{"order_id":"x"}`))

	mock.ExpectGet("k1").SetVal(`RES:{"order_id":"x"}`)
	payload, ok, err := store.GetResult(context.Background(), "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"order_id":"x"}`, payload)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_GetResult_MissOrLocked(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(db, 2*time.Hour)

	mock.ExpectGet("missing").RedisNil()
	_, ok, err := store.GetResult(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// a key still holding the lock has no replayable result yet
	mock.ExpectGet("locked").SetVal("LOCK")
	_, ok, err = store.GetResult(context.Background(), "locked")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectGet("locked").SetVal("LOCK")
	locked, err := store.IsLocked(context.Background(), "locked")
	require.NoError(t, err)
	assert.True(t, locked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStore_Release(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(db, 2*time.Hour)

	mock.ExpectDel("k1").SetVal(1)

	require.NoError(t, store.Release(context.Background(), "k1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
