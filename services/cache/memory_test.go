package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	d := NewMemoryDeduper(time.Hour)
	d.now = func() time.Time { return now }

	first, err := d.FirstSeen(ctx, "webhook:1")
	require.NoError(t, err)
	assert.True(t, first)

	first, _ = d.FirstSeen(ctx, "webhook:1")
	assert.False(t, first, "repeated key")

	first, _ = d.FirstSeen(ctx, "webhook:2")
	assert.True(t, first, "other key")

	require.NoError(t, d.Forget(ctx, "webhook:1"))
	first, _ = d.FirstSeen(ctx, "webhook:1")
	assert.True(t, first, "forgotten key")

	now = now.Add(2 * time.Hour)
	first, _ = d.FirstSeen(ctx, "webhook:2")
	assert.True(t, first, "expired key")
}
