package voterindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "accredo/pkg/domain-errors"
)

func testRegistry() []VoterRecord {
	return []VoterRecord{
		{VIN: "AB1234567", FullName: "Amina Yakubu", PollingUnit: "UNIT_1", Ward: "SALUWE", LGA: "WASE", DateOfBirth: "1990-04-12"},
		{VIN: "CD7654321", FullName: "John Dakum", PollingUnit: "UNIT_1", Ward: "SALUWE", LGA: "WASE", DateOfBirth: "1985-11-02"},
		{VIN: "EF9934567", FullName: "Rifkatu Gyang", PollingUnit: "UNIT_2", Ward: "DU", LGA: "JOS_SOUTH", DateOfBirth: "1978-01-30"},
	}
}

func TestResolveExactMatch(t *testing.T) {
	ix := New(testRegistry())
	ctx := context.Background()

	rec, err := ix.Resolve(ctx, "AB1234567", "UNIT_1")
	require.NoError(t, err)
	assert.Equal(t, "Amina Yakubu", rec.FullName)

	// Right VIN, wrong polling unit.
	_, err = ix.Resolve(ctx, "AB1234567", "UNIT_2")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	// Unknown VIN.
	_, err = ix.Resolve(ctx, "ZZ0000000", "UNIT_1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestResolveSuffixMatch(t *testing.T) {
	ix := New(testRegistry())
	ctx := context.Background()

	// Six-character capture matches AB1234567 by suffix.
	rec, err := ix.Resolve(ctx, "234567", "UNIT_1")
	require.NoError(t, err)
	assert.Equal(t, "AB1234567", rec.VIN)

	// Same suffix exists in UNIT_2 under a different VIN.
	rec, err = ix.Resolve(ctx, "934567", "UNIT_2")
	require.NoError(t, err)
	assert.Equal(t, "EF9934567", rec.VIN)

	// Suffix present in the registry but not in the claimed unit.
	_, err = ix.Resolve(ctx, "654321", "UNIT_2")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestResolveShortVINRejected(t *testing.T) {
	ix := New(testRegistry())

	_, err := ix.Resolve(context.Background(), "1234", "UNIT_1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ix.Resolve(context.Background(), "", "UNIT_1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ix.Resolve(context.Background(), "AB1234567", "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestResolveSuffixCollision(t *testing.T) {
	registry := []VoterRecord{
		{VIN: "AA1111222", FullName: "First Registered", PollingUnit: "UNIT_9"},
		{VIN: "BB1111222", FullName: "Second Registered", PollingUnit: "UNIT_9"},
	}
	ctx := context.Background()

	// Default policy: earliest registration wins, deterministically.
	ix := New(registry)
	for range 3 {
		rec, err := ix.Resolve(ctx, "111222", "UNIT_9")
		require.NoError(t, err)
		assert.Equal(t, "First Registered", rec.FullName)
	}

	// Reject policy surfaces the ambiguity instead of guessing.
	strict := New(registry, WithTieBreak(TieBreakReject))
	_, err := strict.Resolve(ctx, "111222", "UNIT_9")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAmbiguousMatch))
}

func TestNewSkipsBlankAndDuplicateVINs(t *testing.T) {
	ix := New([]VoterRecord{
		{VIN: "", FullName: "No VIN", PollingUnit: "UNIT_1"},
		{VIN: "AB1234567", FullName: "Original", PollingUnit: "UNIT_1"},
		{VIN: "AB1234567", FullName: "Duplicate", PollingUnit: "UNIT_2"},
	})
	assert.Equal(t, 1, ix.Len())

	rec, err := ix.Resolve(context.Background(), "AB1234567", "UNIT_1")
	require.NoError(t, err)
	assert.Equal(t, "Original", rec.FullName)
}
