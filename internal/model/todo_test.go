package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodoIcon(t *testing.T) {
	assert.Equal(t, NotDoneIcon, Todo{}.Icon())
	assert.Equal(t, DoneIcon, Todo{Done: true}.Icon())
	assert.Equal(t, "\U0001F7E0", NotDoneIcon)
	assert.Equal(t, "✅", DoneIcon)
}

func TestTodoValidate(t *testing.T) {
	require.NoError(t, Todo{ID: "a", Text: "Buy milk"}.Validate())

	assert.Error(t, Todo{ID: "a"}.Validate(), "empty text")
	assert.Error(t, Todo{Text: "x"}.Validate(), "missing id")
	assert.Error(t, Todo{ID: "a", Text: strings.Repeat("x", MaxTextLength+1)}.Validate())
	// runes, not bytes
	assert.NoError(t, Todo{ID: "a", Text: strings.Repeat("é", MaxTextLength)}.Validate())
}

func TestCompletedAndStats(t *testing.T) {
	todos := []Todo{
		{ID: "1", Text: "a", Done: true},
		{ID: "2", Text: "b"},
		{ID: "3", Text: "c", Done: true},
	}
	done := Completed(todos)
	require.Len(t, done, 2)
	assert.Equal(t, "1", done[0].ID)
	assert.Equal(t, "3", done[1].ID)

	d, p := Stats(todos)
	assert.Equal(t, 2, d)
	assert.Equal(t, 1, p)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Buy milk", NormalizeText("  Buy milk \n"))
	assert.Empty(t, NormalizeText("   "))
}
