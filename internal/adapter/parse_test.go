package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCount(t *testing.T) {
	t.Parallel()

	cases := map[string]int64{
		"1,204":         1204,
		"1.204":         1204,
		"12.5K":         12500,
		"3M followers":  3000000,
		"2.1b":          2100000000,
		"42":            42,
		"1204.0":        1204,
		" 7 likes ":     7,
		"1,5k":          1500,
	}
	for in, want := range cases {
		got, ok := parseCount(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parseCount("n/a")
	assert.False(t, ok)
	assert.Nil(t, countPtr(""))
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"12:34":   754,
		"1:02:03": 3723,
		"PT1M30S": 90,
		"PT2H":    7200,
		"90":      90,
		"90.7":    90,
	}
	for in, want := range cases {
		got, ok := parseDuration(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "soon", "1:xx"} {
		_, ok := parseDuration(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-03-01T12:00:00Z", "2024-03-01T13:00:00+01:00", "1709294400", "1709294400000"} {
		got, ok := parseTime(in)
		if assert.True(t, ok, in) {
			assert.True(t, want.Equal(*got), in)
		}
	}
	_, ok := parseTime("yesterday")
	assert.False(t, ok)
}
