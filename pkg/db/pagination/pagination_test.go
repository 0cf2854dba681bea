package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	token, err := EncodeCursor(Cursor{ID: "42", Date: date})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
	assert.True(t, cursor.Date.Equal(date))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not-base64!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor("e30=") // {}
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
