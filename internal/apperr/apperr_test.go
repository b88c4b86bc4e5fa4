package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKindAndCode(t *testing.T) {
	err := New(KindInsufficientStock, CodeInsufficientStock, "only %d left", 2)
	wrapped := fmt.Errorf("reserve: %w", err)

	assert.ErrorIs(t, wrapped, ErrInsufficientStock)
	assert.ErrorIs(t, wrapped, &Error{Kind: KindInsufficientStock, Code: CodeInsufficientStock})
	assert.NotErrorIs(t, wrapped, &Error{Kind: KindInsufficientStock, Code: CodeTierUnavailable})
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, "only 2 left", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("lock wait timeout")
	err := Wrap(KindUnavailable, CodeLockTimeout, cause, "tier busy")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "tier busy: lock wait timeout", err.Error())
	assert.True(t, Retryable(fmt.Errorf("x: %w", err)))
}

func TestKindAndCodeOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound(CodeOrderNotFound, "order %d", 1)))
	assert.Equal(t, KindInvalid, KindOf(Invalid(CodeOrderNotPending, "no")))
	assert.Equal(t, KindConflict, KindOf(Wrap(KindConflict, CodeDuplicate, errors.New("1062"), "dup")))
	assert.Equal(t, CodeDuplicate, CodeOf(Wrap(KindConflict, CodeDuplicate, errors.New("1062"), "dup")))

	plain := errors.New("boom")
	assert.Equal(t, Kind(""), KindOf(plain))
	assert.Equal(t, "", CodeOf(plain))
	assert.False(t, Retryable(plain))
	assert.False(t, Retryable(New(KindInsufficientStock, CodeInsufficientStock, "sold out")))
}

func TestErrorWithoutMessage(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", (&Error{Kind: KindNotFound}).Error())
}
