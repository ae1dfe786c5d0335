package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifiers(t *testing.T) {
	id := NewUUID()
	assert.True(t, IsUUID(id))
	assert.NotEqual(t, id, NewUUID())
	assert.False(t, IsUUID("ride-42"))

	assert.Regexp(t, regexp.MustCompile(`^TXN-[0-9A-F]{16}$`), NewTransactionID())
	assert.Regexp(t, regexp.MustCompile(`^TRF-[0-9A-F]{16}$`), NewTransferReference())
}
