package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDefaults(t *testing.T) {
	params := Parse("", "", Options{})
	assert.Equal(t, Params{Page: 1, Limit: DefaultLimit}, params)

	params = Parse("", "", Options{DefaultLimit: 8})
	assert.Equal(t, 8, params.Limit)
}

func TestParseClampsAndFallsBack(t *testing.T) {
	params := Parse("abc", "-3", Options{DefaultLimit: 8, MaxLimit: 100})
	assert.Equal(t, Params{Page: 1, Limit: 8}, params)

	params = Parse("3", "400", Options{DefaultLimit: 8, MaxLimit: 100})
	assert.Equal(t, Params{Page: 3, Limit: 100}, params)
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Params{Page: 1, Limit: 10}.Offset())
	assert.Equal(t, 20, Params{Page: 3, Limit: 10}.Offset())
	assert.Equal(t, 0, Params{}.Offset())
}

func TestNewMetadata(t *testing.T) {
	meta := NewMetadata(25, Params{Page: 2, Limit: 10})
	assert.Equal(t, Metadata{
		Total:           25,
		CurrentPage:     2,
		TotalPages:      3,
		PageSize:        10,
		HasNextPage:     true,
		HasPreviousPage: true,
	}, meta)

	empty := NewMetadata(0, Params{Page: 1, Limit: 10})
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNextPage)
	assert.False(t, empty.HasPreviousPage)
}
