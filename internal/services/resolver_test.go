package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/fault"
)

func TestResolverRegisterAndResolve(t *testing.T) {
	r := newSectionResolver()

	require.NoError(t, r.register("s1", 10))
	require.NoError(t, r.register("s2", 20))

	id, ok := r.resolve("s1")
	assert.True(t, ok)
	assert.Equal(t, int64(10), id)

	id, ok = r.resolve("s2")
	assert.True(t, ok)
	assert.Equal(t, int64(20), id)
}

func TestResolverUnknownIDReportsAbsence(t *testing.T) {
	r := newSectionResolver()
	require.NoError(t, r.register("s1", 10))

	_, ok := r.resolve("missing")
	assert.False(t, ok)
}

func TestResolverEmptyIDIsIgnored(t *testing.T) {
	r := newSectionResolver()

	require.NoError(t, r.register("", 10))
	require.NoError(t, r.register("", 20))

	_, ok := r.resolve("")
	assert.False(t, ok)
}

func TestResolverDuplicateIDRejected(t *testing.T) {
	r := newSectionResolver()
	require.NoError(t, r.register("s1", 10))

	err := r.register("s1", 20)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrDuplicateTransient))
	assert.True(t, fault.IsClientError(err))

	// The first registration survives.
	id, ok := r.resolve("s1")
	assert.True(t, ok)
	assert.Equal(t, int64(10), id)
}
