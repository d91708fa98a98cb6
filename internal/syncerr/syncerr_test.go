package syncerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_FormatsWithAndWithoutCause(t *testing.T) {
	base := errors.New("boom")
	e := New(KindSheetInvalidValue, "rec123", base)
	assert.Contains(t, e.Error(), "rec123")
	assert.Contains(t, e.Error(), "boom")
	assert.Contains(t, e.Error(), string(KindSheetInvalidValue))

	e2 := New(KindMissingRequired, "rec456", nil)
	assert.Contains(t, e2.Error(), "rec456")
	assert.NotContains(t, e2.Error(), "boom")
}

func TestUnwrap(t *testing.T) {
	base := errors.New("root cause")
	e := New(KindTransient, "rec1", base)
	assert.Equal(t, base, errors.Unwrap(e))
}

func TestKindOf_UnwrapsWrappedError(t *testing.T) {
	base := New(KindSheetUnknownField, "rec1", errors.New("no such field"))
	wrapped := fmt.Errorf("while writing: %w", base)
	assert.Equal(t, KindSheetUnknownField, KindOf(wrapped))
}

func TestKindOf_DefaultsToTransient(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(errors.New("generic failure")))
}

func TestMessages_CoverAllKinds(t *testing.T) {
	kinds := []Kind{
		KindConfig, KindReferenceMissing, KindMissingRequired,
		KindSheetUnknownField, KindSheetInvalidValue, KindTransient,
	}
	for _, k := range kinds {
		msg, ok := Messages[k]
		assert.True(t, ok, "missing message for %s", k)
		assert.NotEmpty(t, msg)
	}
}
