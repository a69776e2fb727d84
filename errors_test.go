package lurch

import (
	"errors"
	"fmt"
	"testing"

	crdberrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, ErrNotSorted, ErrInvalidArgument)
	assert.ErrorIs(t, ErrKeyExists, ErrInvalidArgument)
	assert.NotErrorIs(t, ErrNotFound, ErrInvalidArgument)

	var err error = &IndexOutOfRangeError{Index: 7, Count: 3}
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.EqualError(t, err, "lurch: index 7 out of range [0, 3)")

	wrapped := fmt.Errorf("at: %w", err)
	var oor *IndexOutOfRangeError
	assert.ErrorAs(t, wrapped, &oor)
	assert.Equal(t, 7, oor.Index)
}

func TestCorruption(t *testing.T) {
	err := Corruption("slot %d linked twice", 12)
	assert.ErrorIs(t, err, ErrCorrupted)
	assert.True(t, errors.Is(fmt.Errorf("check: %w", err), ErrCorrupted))
	assert.True(t, crdberrors.HasAssertionFailure(err))
	assert.Contains(t, err.Error(), "slot 12 linked twice")
	assert.True(t, IsCorruption(err))
	assert.True(t, IsCorruption(fmt.Errorf("verify: %w", err)))

	assert.False(t, IsCorruption(errors.New("other")))
	assert.False(t, IsCorruption("slot 12 linked twice"))
	assert.False(t, IsCorruption(nil))

	recovered := func() (v any) {
		defer func() { v = recover() }()
		panic(Corruption("broken"))
	}()
	assert.True(t, IsCorruption(recovered))
}
