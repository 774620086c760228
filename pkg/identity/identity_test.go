package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullProviderKnowsNobody(t *testing.T) {
	name, ok := NullProvider{}.Lookup("0xABC")
	assert.False(t, ok)
	assert.Empty(t, name)
}

func TestMemoryProviderExactAndFoldedMatch(t *testing.T) {
	p := NewMemoryProvider(map[string]string{
		"0xAbC": "Alice",
	})

	name, ok := p.Lookup("0xAbC")
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)

	name, ok = p.Lookup("0xabc")
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)

	_, ok = p.Lookup("0xDEF")
	assert.False(t, ok)
}
