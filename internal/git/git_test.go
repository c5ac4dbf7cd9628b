package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHead_NotARepository(t *testing.T) {
	_, err := Head(t.TempDir())
	assert.Error(t, err)
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abcdef12", Short("abcdef1234567890"))
	assert.Equal(t, "abc", Short("abc"))
}
