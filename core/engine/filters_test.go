package engine

import (
	"testing"

	"Resona/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleFilter(t *testing.T) {
	var status model.FilterStatus

	for _, name := range FilterNames() {
		out, err := ToggleFilter(status, name, true)
		require.NoError(t, err, name)
		off, err := ToggleFilter(out, name, false)
		require.NoError(t, err, name)
		assert.Equal(t, model.FilterStatus{}, off, name)
	}

	_, err := ToggleFilter(status, "reverb", true)
	assert.ErrorIs(t, err, ErrUnknownFilter)
}

func TestToggleFilterTimescaleExclusive(t *testing.T) {
	status, err := ToggleFilter(model.FilterStatus{}, FilterNightcore, true)
	require.NoError(t, err)
	assert.True(t, status.Nightcore)

	status, err = ToggleFilter(status, FilterVaporwave, true)
	require.NoError(t, err)
	assert.True(t, status.Vaporwave)
	assert.False(t, status.Nightcore)

	status, err = ToggleFilter(status, FilterNightcore, true)
	require.NoError(t, err)
	assert.True(t, status.Nightcore)
	assert.False(t, status.Vaporwave)
}

func TestBuildFilters(t *testing.T) {
	filters := buildFilters(model.FilterStatus{})
	assert.Nil(t, filters.Equalizer)
	assert.Nil(t, filters.Timescale)

	filters = buildFilters(model.FilterStatus{Bass: true, Nightcore: true, Tremolo: true})
	require.NotNil(t, filters.Equalizer)
	require.NotNil(t, filters.Timescale)
	require.NotNil(t, filters.Tremolo)
	assert.Greater(t, filters.Timescale.Speed, 1.0)
	assert.Nil(t, filters.Karaoke)

	filters = buildFilters(model.FilterStatus{Vaporwave: true})
	require.NotNil(t, filters.Timescale)
	assert.Less(t, filters.Timescale.Speed, 1.0)
}

func TestFilterStatusRoundTrip(t *testing.T) {
	cases := []model.FilterStatus{
		{},
		{Bass: true},
		{Nightcore: true},
		{Vaporwave: true},
		{Karaoke: true, Rotation: true},
		{Tremolo: true, Vibrato: true, Distortion: true, ChannelMix: true},
	}

	for _, want := range cases {
		assert.Equal(t, want, filterStatusOf(buildFilters(want)))
	}
}

func TestFilterNames(t *testing.T) {
	names := FilterNames()
	assert.Len(t, names, 9)
	assert.Contains(t, names, FilterBass)
	assert.Contains(t, names, FilterChannelMix)
}
