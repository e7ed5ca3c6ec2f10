package contrib

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/probewire/internal/contrib/santa"
	"github.com/gyaneshwarpardhi/probewire/internal/dispatch"
	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/logtest"
)

func TestRegisterAll(t *testing.T) {
	reg := event.NewRegistry(logtest.Discard())
	require.NoError(t, RegisterAll(reg, Options{}))
	assert.Equal(t, []string{
		"inventory_machine_update",
		"osquery_enrollment",
		"osquery_result",
		"santa_event",
	}, reg.Types())

	err := RegisterAll(reg, Options{})
	assert.ErrorIs(t, err, event.ErrDuplicateEventType)
}

func TestDispatchSantaEvent(t *testing.T) {
	reg := event.NewRegistry(logtest.Discard())
	require.NoError(t, RegisterAll(reg, Options{}))
	d := dispatch.New(reg, nil, logtest.Discard())

	e, err := d.EventFromWire(context.Background(), map[string]any{
		event.MetadataKey: map[string]any{"type": santa.EventType, "machine_serial_number": "SN1"},
		"decision":        "BLOCK_UNKNOWN",
		"file_sha256":     "abc",
	})
	require.NoError(t, err)
	require.IsType(t, &santa.Event{}, e)
	assert.Equal(t, "BLOCK_UNKNOWN", e.(*santa.Event).Decision())

	ctx := e.(event.ExtraContexter).ExtraContext()
	assert.Equal(t, "BLOCK_UNKNOWN", ctx["decision"])
	assert.Equal(t, "abc", ctx["file_sha256"])
}
