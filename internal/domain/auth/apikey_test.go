package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIKeyInfo_HasScope(t *testing.T) {
	checkout := &APIKeyInfo{Scopes: []string{ScopeCheckout}}
	admin := &APIKeyInfo{Scopes: []string{ScopeAdmin}}
	none := &APIKeyInfo{}

	assert.True(t, checkout.HasScope(ScopeCheckout))
	assert.False(t, checkout.HasScope(ScopeAdmin))
	assert.True(t, admin.HasScope(ScopeCheckout))
	assert.True(t, admin.HasScope(ScopeAdmin))
	assert.False(t, none.HasScope(ScopeCheckout))
}

func TestHashKey(t *testing.T) {
	a := HashKey([]byte("pepper"), "key-1")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashKey([]byte("pepper"), "key-1"))
	assert.NotEqual(t, a, HashKey([]byte("other"), "key-1"))
	assert.NotEqual(t, a, HashKey([]byte("pepper"), "key-2"))
}
