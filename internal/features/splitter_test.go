package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acoplu/borsa-aslani/internal/utils"
)

func TestSplitFeaturesTarget(t *testing.T) {
	frame, _, err := newDefaultEngine(t).Enrich(generateSeries(40))
	require.NoError(t, err)

	split, err := SplitFeaturesTarget(frame, "Close")
	require.NoError(t, err)

	closes, err := frame.Column("Close")
	require.NoError(t, err)

	assert.Equal(t, "Close", split.TargetName)
	assert.Equal(t, closes, split.Target)
	assert.False(t, split.Features.Has("Close"))
	assert.Equal(t, frame.Width()-1, split.Features.Width())
	assert.Equal(t, frame.Index(), split.Features.Index())
	assert.True(t, frame.Has("Close"), "source frame is left untouched")
}

func TestSplitFeaturesTarget_MissingColumn(t *testing.T) {
	frame := generateSeries(3).Frame()

	_, err := SplitFeaturesTarget(frame, "Adj Close")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrSchemaMismatch)

	var mismatch *utils.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "Adj Close", mismatch.Column)
}
