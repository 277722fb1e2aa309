package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapMsgKeepsCode(t *testing.T) {
	err := ErrRecordNotFound.WrapMsg("conversation missing", "conversationId", "c1")

	ce, ok := AsCode(err)
	require.True(t, ok)
	assert.Equal(t, RecordNotFoundError, ce.Code)
	assert.Equal(t, "conversation missing, conversationId=c1", ce.Detail)
	assert.True(t, ErrRecordNotFound.Is(err))
	assert.False(t, ErrArgs.Is(err))

	// the shared value must not be mutated
	assert.Empty(t, ErrRecordNotFound.Detail)
}

func TestWrapMsgPlainError(t *testing.T) {
	base := errors.New("boom")
	err := WrapMsg(base, "query", "table", "message")
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "table=message")

	assert.Nil(t, WrapMsg(nil, "x"))
	_, ok := AsCode(err)
	assert.False(t, ok)
}

func TestToStringOddPairs(t *testing.T) {
	assert.Equal(t, "a, k=MISSING", toString("a", []any{"k"}))
	assert.Equal(t, "k=1", toString("", []any{"k", 1}))
}
