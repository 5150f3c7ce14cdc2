package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOneSessionPerPublicAddress(t *testing.T) {
	r := NewAddressRegistry()

	require.NoError(t, r.Register("203.0.113.7", "c1"))
	err := r.Register("203.0.113.7", "c2")
	assert.ErrorIs(t, err, ErrConcurrentSession)
	assert.Equal(t, "concurrent session limit", err.Error())

	holder, ok := r.Holder("203.0.113.7")
	require.True(t, ok)
	assert.Equal(t, ConnID("c1"), holder)

	r.Release("203.0.113.7")
	assert.NoError(t, r.Register("203.0.113.7", "c2"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryLoopbackIsExempt(t *testing.T) {
	r := NewAddressRegistry()
	for _, addr := range []string{"127.0.0.1", "127.0.0.1", "::1", "::1", "127.8.0.2"} {
		assert.NoError(t, r.Register(addr, "c"))
	}
	assert.Zero(t, r.Len())

	// 释放不存在的地址是无害的
	r.Release("198.51.100.1")
}
