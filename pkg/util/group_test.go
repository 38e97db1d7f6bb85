package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupBy(t *testing.T) {
	type phrase struct {
		dictID int
		text   string
	}

	phrases := []phrase{
		{1, "hello"},
		{2, "goodbye"},
		{1, "thank you"},
	}

	grouped := GroupBy(phrases, func(p phrase) int { return p.dictID })

	assert.Len(t, grouped, 2)
	assert.Equal(t, []phrase{{1, "hello"}, {1, "thank you"}}, grouped[1])
	assert.Equal(t, []phrase{{2, "goodbye"}}, grouped[2])
}

func TestGroupByEmpty(t *testing.T) {
	grouped := GroupBy(nil, func(s string) string { return s })
	assert.Empty(t, grouped)
}
