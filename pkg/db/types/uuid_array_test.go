package dbtypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDArrayRoundTripsPostgresLiteral(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	arr := UUIDArray{a, b}

	v, err := arr.Value()
	require.NoError(t, err)

	var scanned UUIDArray
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, arr, scanned)
	assert.True(t, scanned.Contains(b))
	assert.Equal(t, []string{a.String(), b.String()}, scanned.Strings())
}

func TestUUIDArrayEmpty(t *testing.T) {
	var scanned UUIDArray
	require.NoError(t, scanned.Scan("{}"))
	assert.Empty(t, scanned)
	assert.False(t, scanned.Contains(uuid.New()))

	require.Error(t, scanned.Scan(42))
}
