package gatekeeper

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"요금제 바꿔주세요!", "요금제바꿔주세요"},
		{"Too   Expensive?!", "tooexpensive"},
		{"데이터가... 부족해요", "데이터가부족해요"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeKey(tt.input))
	}
}

func TestCacheGetAfterSet(t *testing.T) {
	c := NewCache(4)
	d := Decision{Skip: true, Reason: "test"}
	c.Set("요금제 바꿔주세요", d)

	got, ok := c.Get("요금제 바꿔주세요")
	require.True(t, ok)
	assert.Equal(t, d, got)

	// Punctuation variant hits the same entry.
	got, ok = c.Get("요금제... 바꿔주세요!")
	require.True(t, ok)
	assert.Equal(t, d, got)
}

func TestCacheEvictsLeastRecentlyTouched(t *testing.T) {
	c := NewCache(3)
	for i := range 3 {
		c.Set(fmt.Sprintf("utterance %d", i), Decision{Reason: fmt.Sprintf("r%d", i)})
	}

	// Touch entry 0 so entry 1 becomes the eviction candidate.
	_, ok := c.Get("utterance 0")
	require.True(t, ok)

	c.Set("utterance 3", Decision{Reason: "r3"})

	_, ok = c.Get("utterance 1")
	assert.False(t, ok, "least recently touched entry evicted")
	_, ok = c.Get("utterance 0")
	assert.True(t, ok)
	_, ok = c.Get("utterance 3")
	assert.True(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestCacheSetTouches(t *testing.T) {
	c := NewCache(2)
	c.Set("a one", Decision{Reason: "a"})
	c.Set("b two", Decision{Reason: "b"})
	// Re-set "a one": now "b two" is oldest.
	c.Set("a one", Decision{Reason: "a2"})
	c.Set("c three", Decision{Reason: "c"})

	_, ok := c.Get("b two")
	assert.False(t, ok)
	got, ok := c.Get("a one")
	require.True(t, ok)
	assert.Equal(t, "a2", got.Reason)
}
