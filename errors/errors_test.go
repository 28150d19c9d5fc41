package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestWrapPattern(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Store", "GetUserName", "lookup user")
	require.Error(t, err)
	assert.Equal(t, "Store.GetUserName: lookup user failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "a", "b", "c"))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestClassifiedWrapping(t *testing.T) {
	base := stderrors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "Engine", "Evaluate", "check rules")
			var ce *ClassifiedError
			require.True(t, stderrors.As(err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "Engine", ce.Component)
			assert.True(t, stderrors.Is(err, base))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNoSuchUser))
	assert.True(t, IsNotFound(ErrNoSuchRoom))
	assert.True(t, IsNotFound(ErrNoSuchChannel))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", ErrKeyNotFound)))
	assert.False(t, IsNotFound(ErrInvalidConfig))
	assert.False(t, IsNotFound(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(stderrors.New("dial tcp: connection refused")))
	assert.False(t, IsTransient(ErrInvalidConfig))
	assert.False(t, IsTransient(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(fmt.Errorf("load: %w", ErrMissingConfig)))
	assert.False(t, IsFatal(ErrNoSuchRoom))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionTimeout))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrParsingFailed))
}
