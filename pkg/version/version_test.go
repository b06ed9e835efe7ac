package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullUsesShortenedOverride(t *testing.T) {
	t.Cleanup(func() { commitOverride = "" })

	commitOverride = "a3f8c2d1e9b7"
	assert.Equal(t, "callcopilot/a3f8c2d1", Full())

	commitOverride = "abc"
	assert.Equal(t, "callcopilot/abc", Full())
}
