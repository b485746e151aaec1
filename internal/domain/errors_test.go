package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodes(t *testing.T) {
	err := fmt.Errorf("load chat: %w", NotFound("chat not found"))

	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, "chat not found", PublicMessage(err))

	plain := errors.New("pq: connection reset")
	assert.Equal(t, CodeInternal, CodeOf(plain))
	assert.NotContains(t, PublicMessage(plain), "pq")

	wrapped := Wrap(CodeBadRequest, "bad cursor", plain)
	assert.ErrorIs(t, wrapped, plain)
	assert.Equal(t, "bad cursor: pq: connection reset", wrapped.Error())
}
