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

type eventSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func TestGetOrSetJSON_MissLoadsAndStores(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := New(db)

	eventID := uuid.New()
	key := KeyEventSummary(eventID)
	want := eventSummary{ID: eventID, Name: "Synth Night"}

	// miss outside and inside singleflight, then store
	mock.ExpectGet(key).RedisNil()
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, `{"id":"`+eventID.String()+`","name":"Synth Night"}`, 30*time.Second).SetVal("OK")

	loads := 0
	got, err := GetOrSetJSON(context.Background(), cache, key, 30*time.Second,
		func(ctx context.Context) (eventSummary, error) {
			loads++
			return want, nil
		})
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, 1, loads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrSetJSON_HitSkipsLoader(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := New(db)

	eventID := uuid.New()
	key := KeyEventSummary(eventID)

	mock.ExpectGet(key).SetVal(`{"id":"` + eventID.String() + `","name":"Synth Night"}`)

	got, err := GetOrSetJSON(context.Background(), cache, key, time.Minute,
		func(ctx context.Context) (eventSummary, error) {
			t.Fatal("loader must not run on a cache hit")
			return eventSummary{}, nil
		})
	require.NoError(t, err)

	assert.Equal(t, "Synth Night", got.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateEvent_DropsBothKeys(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := New(db)

	eventID := uuid.New()

	mock.ExpectDel(KeyEventSummary(eventID), KeyEventTicketTypes(eventID)).SetVal(2)

	require.NoError(t, cache.InvalidateEvent(context.Background(), eventID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
