package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMustMarshalJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(MustMarshalJSON(map[string]int{"a": 1})))
	assert.Panics(t, func() { MustMarshalJSON(make(chan int)) })
}

func TestIsJSONNull(t *testing.T) {
	assert.True(t, IsJSONNull(nil))
	assert.True(t, IsJSONNull([]byte(" null ")))
	assert.False(t, IsJSONNull([]byte(`{"k":null}`)))
	assert.False(t, IsJSONNull([]byte(`0`)))
}
