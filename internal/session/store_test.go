package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/fairweather/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 5, 28, 9, 0, 0, 0, time.UTC)}
	return NewStore(WithClock(clock.Now)), clock
}

func pending(activity string, awaiting types.Awaiting) *types.SessionContext {
	return &types.SessionContext{
		PendingIntent: &types.Intent{Activity: activity, Confidence: 0.9},
		Awaiting:      awaiting,
	}
}

func TestStore_PutGet(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	store.Put(ctx, "telegram:1", pending("hiking", types.AwaitingTime))

	sc, ok := store.Get(ctx, "telegram:1")
	require.True(t, ok)
	assert.Equal(t, types.ConversationID("telegram:1"), sc.ConversationID)
	assert.Equal(t, types.AwaitingTime, sc.Awaiting)
	assert.Equal(t, "hiking", sc.PendingIntent.Activity)
	assert.Equal(t, clock.Now(), sc.CreatedAt)
}

func TestStore_GetAbsent(t *testing.T) {
	store, _ := newTestStore()

	sc, ok := store.Get(context.Background(), "nobody")
	assert.False(t, ok)
	assert.Nil(t, sc)
}

func TestStore_PutOverwrites(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	store.Put(ctx, "c", pending("hiking", types.AwaitingTime))
	store.Put(ctx, "c", pending("picnic", types.AwaitingConditionDecision))

	sc, ok := store.Get(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, "picnic", sc.PendingIntent.Activity)
	assert.Equal(t, types.AwaitingConditionDecision, sc.Awaiting)
	assert.Equal(t, 1, store.Len())
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	store.Put(ctx, "c", pending("hiking", types.AwaitingTime))
	store.Clear(ctx, "c")
	store.Clear(ctx, "c")
	store.Clear(ctx, "never-written")

	_, ok := store.Get(ctx, "c")
	assert.False(t, ok)
}

func TestStore_ExpiryBoundary(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	store.Put(ctx, "c", pending("hiking", types.AwaitingTime))

	clock.Advance(DefaultTTL)
	_, ok := store.Get(ctx, "c")
	assert.True(t, ok, "entry exactly at the TTL is still live")

	clock.Advance(time.Second)
	_, ok = store.Get(ctx, "c")
	assert.False(t, ok, "entry past the TTL reads as absent")
	assert.Equal(t, 0, store.Len(), "expired entry is evicted on read")
}

func TestStore_NoSweeper(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	store.Put(ctx, "a", pending("hiking", types.AwaitingTime))
	store.Put(ctx, "b", pending("picnic", types.AwaitingTime))
	clock.Advance(time.Hour)

	assert.Equal(t, 2, store.Len(), "expired entries stay until read")

	_, ok := store.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestStore_RewriteRefreshesCreatedAt(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	store.Put(ctx, "c", pending("hiking", types.AwaitingTime))
	clock.Advance(9 * time.Minute)

	sc, ok := store.Get(ctx, "c")
	require.True(t, ok)
	store.Put(ctx, "c", sc)

	clock.Advance(9 * time.Minute)
	_, ok = store.Get(ctx, "c")
	assert.True(t, ok, "rewrite restarts the expiry window")
}

func TestStore_WithTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewStore(WithTTL(30*time.Second), WithClock(clock.Now))
	ctx := context.Background()

	assert.Equal(t, 30*time.Second, store.TTL())

	store.Put(ctx, "c", pending("hiking", types.AwaitingTime))
	clock.Advance(31 * time.Second)
	_, ok := store.Get(ctx, "c")
	assert.False(t, ok)

	assert.Equal(t, DefaultTTL, NewStore(WithTTL(0)).TTL())
}

func TestStore_ReturnsCopies(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	in := pending("hiking", types.AwaitingTime)
	store.Put(ctx, "c", in)
	in.PendingIntent.Activity = "mutated"

	sc, _ := store.Get(ctx, "c")
	sc.PendingIntent.Activity = "also mutated"

	again, _ := store.Get(ctx, "c")
	assert.Equal(t, "hiking", again.PendingIntent.Activity)
}

func TestStore_Concurrent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := types.ConversationID(fmt.Sprintf("c%d", i%5))
			store.Put(ctx, id, pending("run", types.AwaitingTime))
			store.Get(ctx, id)
			if i%3 == 0 {
				store.Clear(ctx, id)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, store.Len(), 5)
}
