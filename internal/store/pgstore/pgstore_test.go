package pgstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/store"
)

func TestDecodeNotification(t *testing.T) {
	// row_to_json renders timestamptz with an offset and no "Z"
	c, err := decodeNotification(`{"kind":"upsert","todo":{"id":"a","text":"Buy milk","done":true,"created_at":"2024-05-01T12:00:00+00:00","updated_at":"2024-05-01T12:01:00.5+00:00"}}`)
	require.NoError(t, err)
	assert.Equal(t, store.ChangeUpsert, c.Kind)
	assert.Equal(t, "a", c.Todo.ID)
	assert.True(t, c.Todo.Done)
	assert.True(t, c.Todo.UpdatedAt.Equal(time.Date(2024, 5, 1, 12, 1, 0, 500_000_000, time.UTC)))

	c, err = decodeNotification(`{"kind":"delete","todo":{"id":"b"}}`)
	require.NoError(t, err)
	assert.Equal(t, store.ChangeDelete, c.Kind)
	assert.Equal(t, "b", c.Todo.ID)
}

func TestDecodeNotificationRejectsGarbage(t *testing.T) {
	for _, payload := range []string{
		`nope`,
		`{"kind":"upsert","todo":{}}`,
		`{"kind":"truncate","todo":{"id":"a"}}`,
	} {
		_, err := decodeNotification(payload)
		assert.Error(t, err, payload)
	}
}
