package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC), ID: "job-42"}

	decoded, err := Decode(c.Encode())
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, "job-42", decoded.ID)
}

func TestDecode_Empty(t *testing.T) {
	c, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecode_Invalid(t *testing.T) {
	for _, token := range []string{"!!!", "bm8tc2VwYXJhdG9y", "YWJjfGpvYg"} {
		_, err := Decode(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(1000))
}

func TestNewPage(t *testing.T) {
	type row struct {
		id string
		at time.Time
	}
	now := time.Now().UTC()
	rows := []row{{"a", now}, {"b", now.Add(-time.Second)}, {"c", now.Add(-2 * time.Second)}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page := NewPage(rows, 2, cursorOf)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)

	next, err := Decode(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "b", next.ID)

	page = NewPage(rows, 3, cursorOf)
	assert.Len(t, page.Items, 3)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)

	empty := NewPage[row](nil, 3, cursorOf)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}
