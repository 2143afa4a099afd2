package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairPayloadValidation(t *testing.T) {
	c := NewCompilerWithCache(16)
	ctx := context.Background()

	err := c.Validate(ctx, RepairPayload, map[string]interface{}{
		"deviceType": "laptop",
		"brand":      "Lenovo",
		"issue":      "won't boot",
	})
	require.NoError(t, err)

	err = c.Validate(ctx, RepairPayload, map[string]interface{}{
		"brand": "Lenovo",
	})
	assert.Error(t, err, "deviceType and issue are required")
}

func TestPickupPayloadValidation(t *testing.T) {
	c := NewCompilerWithCache(16)
	ctx := context.Background()

	err := c.Validate(ctx, PickupPayload, map[string]interface{}{
		"items":    "two CRT monitors",
		"quantity": 2,
		"address":  "12 Green St",
	})
	require.NoError(t, err)

	err = c.Validate(ctx, PickupPayload, map[string]interface{}{
		"items":    "a monitor",
		"quantity": 0,
		"address":  "12 Green St",
	})
	assert.Error(t, err, "quantity must be at least 1")
}

func TestUnknownSchemaRejected(t *testing.T) {
	c := NewCompilerWithCache(16)
	err := c.Validate(context.Background(), "bogus", map[string]interface{}{})
	assert.Error(t, err)
}

func TestCompiledSchemaCached(t *testing.T) {
	c := NewCompilerWithCache(16)
	ctx := context.Background()

	payload := map[string]interface{}{
		"items":    "cables",
		"quantity": 1,
		"address":  "somewhere",
	}
	require.NoError(t, c.Validate(ctx, PickupPayload, payload))
	require.NoError(t, c.Validate(ctx, PickupPayload, payload))
	assert.Equal(t, 1, c.cache.Len())
}
