package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/fairweather/internal/types"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var gotID types.ConversationID
	var gotMsg string
	reg.Register("test", func(_ context.Context, id types.ConversationID, message string) error {
		gotID = id
		gotMsg = message
		return nil
	})

	require.NoError(t, reg.Deliver(context.Background(), "test:123", "hello"))
	assert.Equal(t, types.ConversationID("test:123"), gotID)
	assert.Equal(t, "hello", gotMsg)
}

func TestRegistryNoHandler(t *testing.T) {
	reg := NewRegistry()

	err := reg.Deliver(context.Background(), "unknown:123", "hello")
	assert.ErrorContains(t, err, "no delivery handler")
}

func TestRegistryMatchesWholeSource(t *testing.T) {
	reg := NewRegistry()

	var telegramCalls, httpCalls int
	reg.Register("telegram", func(context.Context, types.ConversationID, string) error {
		telegramCalls++
		return nil
	})
	reg.Register("http", func(context.Context, types.ConversationID, string) error {
		httpCalls++
		return nil
	})

	ctx := context.Background()
	require.NoError(t, reg.Deliver(ctx, "telegram:42", "msg1"))
	require.NoError(t, reg.Deliver(ctx, "http:abc", "msg2"))
	assert.Error(t, reg.Deliver(ctx, "telegramx:1", "msg3"))

	assert.Equal(t, 1, telegramCalls)
	assert.Equal(t, 1, httpCalls)
}

func TestRegistryRetriesTransientFailures(t *testing.T) {
	reg := NewRegistry()
	reg.SetRetryPolicy(fastPolicy(3))

	calls := 0
	reg.Register("telegram", func(context.Context, types.ConversationID, string) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, reg.Deliver(context.Background(), "telegram:1", "hi"))
	assert.Equal(t, 2, calls)
}

func TestRegistryNoRetryPolicy(t *testing.T) {
	reg := NewRegistry()
	reg.SetRetryPolicy(nil)

	calls := 0
	reg.Register("telegram", func(context.Context, types.ConversationID, string) error {
		calls++
		return errors.New("timeout")
	})

	assert.Error(t, reg.Deliver(context.Background(), "telegram:1", "hi"))
	assert.Equal(t, 1, calls)
}
