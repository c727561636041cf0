package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, ErrCodeInternal, "something broke")

	assert.Equal(t, "something broke: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := NotFound("job not found")
	assert.Equal(t, "job not found", bare.Error())
	assert.NoError(t, bare.Unwrap())
}

func TestCodePredicates(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("x")))
	assert.True(t, IsConflict(Conflict("x")))
	assert.True(t, IsValidation(ValidationField("target", "x")))
	assert.True(t, IsTimeout(Wrap(errors.New("t"), ErrCodeTimeout, "x")))
	assert.True(t, IsCanceled(Wrap(errors.New("c"), ErrCodeCanceled, "x")))

	// Predicates see through wrapping.
	wrapped := fmt.Errorf("outer: %w", NotFound("inner"))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeValidation, GetCode(Validation("x")))
	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
}
