package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	a := FingerprintString(`{"type":"1d","x":"Part"}`)
	b := FingerprintString(`{"type":"1d","x":"Part"}`)
	c := FingerprintString(`{"type":"1d","x":"Chassis"}`)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
