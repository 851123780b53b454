package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Read(ctx, "missing.html")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := store.Exists(ctx, "a.html")
	require.NoError(t, err)
	assert.False(t, exists)

	data := []byte("<body>{{X}}</body>")
	require.NoError(t, store.Write(ctx, "a.html", data, "text/html"))
	data[0] = 'X'

	got, err := store.Read(ctx, "a.html")
	require.NoError(t, err)
	assert.Equal(t, "<body>{{X}}</body>", string(got))
	assert.Equal(t, "text/html", store.ContentType("a.html"))

	exists, err = store.Exists(ctx, "a.html")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.Error(t, store.Write(ctx, "a.html", nil, "text/html"))
	_, err := store.Read(ctx, "a.html")
	assert.ErrorIs(t, err, context.Canceled)
}
