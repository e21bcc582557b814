package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hash)
	assert.NoError(t, h.Compare(hash, "correct-horse"))
	assert.Error(t, h.Compare(hash, "wrong-horse"))

	_, err = h.Hash("short")
	assert.ErrorIs(t, err, ErrPasswordShort)
}

func TestOutOfRangeCostFallsBack(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(bcrypt.MaxCost+1).cost)
}

func TestIssueTemporary(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	plain, hash, err := IssueTemporary(h)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(plain), MinPasswordLen)
	assert.NoError(t, h.Compare(hash, plain))

	other, _, err := IssueTemporary(h)
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)
}
