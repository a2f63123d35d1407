package summarize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("openai", fixed("a")))
	require.NoError(t, r.Register("local_model", fixed("b")))

	assert.Error(t, r.Register("openai", fixed("c")))
	assert.Error(t, r.Register("  ", fixed("c")))
	assert.Error(t, r.Register("nil", nil))

	assert.Equal(t, []string{"openai", "local_model"}, r.Names())
	assert.Equal(t, 2, r.Len())

	var empty *Registry
	assert.Nil(t, empty.Names())
	assert.Equal(t, 0, empty.Len())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("x", nil))

	quota := &QuotaError{Backend: "x", Err: errors.New("429")}
	assert.Same(t, quota, Classify("x", quota))

	unavailable := &UnavailableError{Backend: "x", Err: errors.New("503")}
	assert.Same(t, unavailable, Classify("x", unavailable))

	err := Classify("x", context.DeadlineExceeded)
	var classified *UnavailableError
	require.True(t, errors.As(err, &classified))
	assert.Equal(t, "x", classified.Backend)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
