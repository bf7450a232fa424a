package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetStore() {
	store.Lock()
	store.cache = nil
	store.Unlock()
}

func TestLoadFromMapAndValidation(t *testing.T) {
	defer resetStore()

	LoadFromMap(map[string]int{"a": 5, "b": 10})

	assert.True(t, Ready())
	assert.True(t, Validate("a"))
	assert.Equal(t, 5, RateLimit("a"))
	assert.True(t, Validate("b"))
	assert.Equal(t, 10, RateLimit("b"))
	assert.False(t, Validate("c"))
	assert.Equal(t, 0, RateLimit("c"))
}

func TestLoadFromMapReplacesCache(t *testing.T) {
	defer resetStore()

	LoadFromMap(map[string]int{"a": 5, "b": 10})
	assert.Equal(t, 10, RateLimit("b"))

	LoadFromMap(map[string]int{"a": 7, "c": 12})

	assert.True(t, Validate("a"))
	assert.Equal(t, 7, RateLimit("a"))
	assert.False(t, Validate("b"))
	assert.True(t, Validate("c"))
	assert.Equal(t, 12, RateLimit("c"))
}

func TestReadyBeforeLoad(t *testing.T) {
	resetStore()
	assert.False(t, Ready())
	assert.False(t, Validate("a"))
}
