package errclass_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	assert.Equal(t, "E_STORAGE", errclass.ErrStorage.Error())

	err := errclass.ErrDuplicateVersion.WithMessage("users/1 v2")
	assert.Equal(t, "E_DUPLICATE_VERSION: users/1 v2", err.Error())

	wrapped := errclass.ErrStorage.WithMessage("append").Wrap(errors.New("disk full"))
	assert.Equal(t, "E_STORAGE: append: disk full", wrapped.Error())
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := errclass.ErrVersioningFailure.WithMessagef("record %d", 7)
	require.True(t, errors.Is(err, errclass.ErrVersioningFailure))
	require.False(t, errors.Is(err, errclass.ErrDuplicateVersion))

	outer := fmt.Errorf("update users: %w", err)
	assert.True(t, errors.Is(outer, errclass.ErrVersioningFailure))
}

func TestError_UnwrapReachesCause(t *testing.T) {
	cause := errors.New("constraint failed")
	err := errclass.ErrVersioningFailure.Wrap(errclass.ErrStorage.Wrap(cause))

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, errclass.ErrStorage))
	assert.Equal(t, "E_VERSIONING_FAILURE", errclass.Code(err))
}

func TestError_WithMessageKeepsBaseUnchanged(t *testing.T) {
	_ = errclass.ErrConfiguration.WithMessage("bad field")
	assert.Empty(t, errclass.ErrConfiguration.Message)
}

func TestFatal(t *testing.T) {
	assert.True(t, errclass.Fatal(errclass.ErrDuplicateVersion.WithMessage("x")))
	assert.True(t, errclass.Fatal(errclass.ErrPrecursorMissing))
	assert.False(t, errclass.Fatal(errclass.ErrStorage))
	assert.False(t, errclass.Fatal(errors.New("other")))
	assert.Equal(t, "", errclass.Code(errors.New("other")))
}
