package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes_SurviveWrapping(t *testing.T) {
	err := fmt.Errorf("write package: %w", NotFound("parent %d", 4))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsForbidden(err))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestTimeoutAndCancelled_AreDistinct(t *testing.T) {
	timeout := Timeout("no relations after %d", 10)
	cancelled := Cancelled(context.Canceled, "listen cancelled")

	assert.True(t, errors.Is(timeout, ErrTimeout))
	assert.False(t, errors.Is(timeout, ErrCancelled))
	assert.True(t, errors.Is(cancelled, ErrCancelled))
	assert.False(t, errors.Is(cancelled, ErrTimeout))
	assert.True(t, errors.Is(cancelled, context.Canceled), "cause stays reachable")
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "BAD_REQUEST: unknown field \"x\"", BadRequest("unknown field %q", "x").Error())
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("line 1: unexpected token")
	err := Wrap(CodeBadRequest, cause, "search body")

	assert.True(t, IsBadRequest(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "BAD_REQUEST: search body: line 1: unexpected token", err.Error())
}
