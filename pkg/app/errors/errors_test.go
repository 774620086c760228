package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryMatching(t *testing.T) {
	err := TransientError(stderrors.New("connection refused"), "node unreachable")

	assert.True(t, Is(err, CategoryTransient))
	assert.False(t, Is(err, CategoryChainRejected))
	assert.True(t, IsRetryable(err))

	assert.False(t, Is(stderrors.New("plain"), CategoryTransient))
	assert.False(t, Is(nil, CategoryTransient))
}

func TestCategorySurvivesWrapping(t *testing.T) {
	inner := ChainRejectedError(stderrors.New("nonce too low"), "node rejected transaction")
	wrapped := fmt.Errorf("broadcast failed: %w", inner)

	assert.True(t, Is(wrapped, CategoryChainRejected))
	assert.False(t, IsRetryable(wrapped))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := ConfigurationError(stderrors.New("no such file"), "cannot read key")
	assert.Equal(t, "cannot read key: no such file", err.Error())

	bare := ConfigurationError(nil, "missing node url")
	assert.Equal(t, "missing node url", bare.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := GeneralError(cause)
	assert.ErrorIs(t, err, cause)
}
