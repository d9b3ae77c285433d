package runner

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCapOutput(t *testing.T) {
	s, cut := CapOutput("hello")
	assert.Equal(t, "hello", s)
	assert.False(t, cut)

	long := strings.Repeat("a", MaxOutputBytes-1) + "€€"
	s, cut = CapOutput(long)
	assert.True(t, cut)
	assert.LessOrEqual(t, len(s), MaxOutputBytes)
	assert.True(t, utf8.ValidString(s))
	assert.Equal(t, MaxOutputBytes-1, len(s))
}
