package middleware

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/logtest"
)

func newEvent(t *testing.T, payload map[string]any) event.Event {
	t.Helper()
	md, err := event.NewMetadata("test_event", "SN1")
	require.NoError(t, err)
	return event.NewBaseEvent(md, payload)
}

func recording(order *[]string, name string, err error) Factory {
	return func() (Middleware, error) {
		return Func(func(_ context.Context, e event.Event) error {
			*order = append(*order, name)
			e.Payload()[name] = true
			return err
		}), nil
	}
}

func TestHandlerRunsInOrder(t *testing.T) {
	var order []string
	reg := NewRegistry()
	reg.MustRegister("b", recording(&order, "b", nil))
	reg.MustRegister("a", recording(&order, "a", nil))

	h := NewHandler(reg, []string{"b", "a"}, logtest.Discard())
	e := newEvent(t, nil)
	require.NoError(t, h.Apply(context.Background(), e))
	assert.Equal(t, []string{"b", "a"}, order)
	assert.Equal(t, map[string]any{"a": true, "b": true}, e.Payload())
}

func TestHandlerInitialisesOnce(t *testing.T) {
	built := 0
	reg := NewRegistry()
	reg.MustRegister("counted", func() (Middleware, error) {
		built++
		return Func(func(context.Context, event.Event) error { return nil }), nil
	})

	h := NewHandler(reg, []string{"counted"}, logtest.Discard())
	assert.Equal(t, 0, built, "nothing is built before the first event")
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Apply(context.Background(), newEvent(t, nil)))
	}
	assert.Equal(t, 1, built)
}

func TestHandlerUnknownReferenceIsSticky(t *testing.T) {
	var order []string
	reg := NewRegistry()
	reg.MustRegister("a", recording(&order, "a", nil))

	h := NewHandler(reg, []string{"a", "missing"}, logtest.Discard())
	err := h.Apply(context.Background(), newEvent(t, nil))
	require.ErrorIs(t, err, ErrUnknownMiddleware)
	assert.ErrorIs(t, h.Apply(context.Background(), newEvent(t, nil)), ErrUnknownMiddleware)
	assert.ErrorIs(t, h.Init(), ErrUnknownMiddleware)
	assert.Empty(t, order)
}

func TestHandlerFactoryError(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("broken", func() (Middleware, error) { return nil, errors.New("no backend") })

	h := NewHandler(reg, []string{"broken"}, logtest.Discard())
	assert.ErrorContains(t, h.Apply(context.Background(), newEvent(t, nil)), "no backend")
}

func TestHandlerContinuesAfterFailure(t *testing.T) {
	var order []string
	reg := NewRegistry()
	reg.MustRegister("fails", recording(&order, "fails", errors.New("boom")))
	reg.MustRegister("next", recording(&order, "next", nil))

	rec, logger := logtest.New()
	h := NewHandler(reg, []string{"fails", "next"}, logger)
	require.NoError(t, h.Apply(context.Background(), newEvent(t, nil)))
	assert.Equal(t, []string{"fails", "next"}, order)
	assert.Equal(t, 1, rec.Count(slog.LevelWarn))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("x", recording(new([]string), "x", nil)))
	assert.Error(t, reg.Register("x", recording(new([]string), "x", nil)))
	assert.Error(t, reg.Register("", recording(new([]string), "x", nil)))
	assert.Error(t, reg.Register("y", nil))
	assert.Panics(t, func() { reg.MustRegister("x", recording(new([]string), "x", nil)) })

	_, err := reg.Resolve("nope")
	assert.ErrorIs(t, err, ErrUnknownMiddleware)
	assert.Equal(t, []string{"x"}, reg.Names())
}

func TestBuiltins(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, BuiltinOptions{
		RedactFields: []string{"password", "token"},
		Tags:         StaticTagStore{"SN1": {"prod", "macos"}},
		Logger:       logtest.Discard(),
	}))
	assert.Equal(t, []string{NameMachineTags, NameMetrics, NameRedactor}, reg.Names())
	assert.Error(t, RegisterBuiltins(reg, BuiltinOptions{}), "built-ins cannot be registered twice")

	md, err := event.NewMetadata("test_event", "SN1", event.WithTags("macos"))
	require.NoError(t, err)
	e := event.NewBaseEvent(md, map[string]any{"user": "jdoe", "password": "hunter2"})

	h := NewHandler(reg, []string{NameMetrics, NameRedactor, NameMachineTags}, logtest.Discard())
	require.NoError(t, h.Apply(context.Background(), e))
	assert.Equal(t, map[string]any{"user": "jdoe", "password": RedactedPlaceholder}, e.Payload())
	assert.Equal(t, []string{"macos", "prod"}, e.Metadata().Tags)
}

func TestMachineTagsWithoutStore(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, BuiltinOptions{Logger: logtest.Discard()}))

	h := NewHandler(reg, []string{NameMachineTags}, logtest.Discard())
	assert.ErrorContains(t, h.Apply(context.Background(), newEvent(t, nil)), "no tag store")
}

func TestRedisTagStore(t *testing.T) {
	addr := os.Getenv("PROBEWIRE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PROBEWIRE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := DefaultTagKeyPrefix + "SN-redis-test"
	require.NoError(t, client.SAdd(ctx, key, "prod").Err())
	defer client.Del(ctx, key)

	tags, err := NewRedisTagStore(client, "").MachineTags(ctx, "SN-redis-test")
	require.NoError(t, err)
	assert.Equal(t, []string{"prod"}, tags)
}
