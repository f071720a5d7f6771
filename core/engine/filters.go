package engine

import (
	"errors"

	"Resona/model"

	"github.com/disgoorg/disgolink/v3/lavalink"
)

// ErrUnknownFilter is returned for filter names outside the allowed set.
var ErrUnknownFilter = errors.New("unknown filter")

// Allowed filter names.
const (
	FilterBass       = "bass"
	FilterNightcore  = "nightcore"
	FilterVaporwave  = "vaporwave"
	FilterKaraoke    = "karaoke"
	FilterTremolo    = "tremolo"
	FilterVibrato    = "vibrato"
	FilterRotation   = "rotation"
	FilterDistortion = "distortion"
	FilterChannelMix = "channelmix"
)

// FilterNames returns the fixed set of toggleable filter names.
func FilterNames() []string {
	return []string{
		FilterBass, FilterNightcore, FilterVaporwave, FilterKaraoke,
		FilterTremolo, FilterVibrato, FilterRotation, FilterDistortion,
		FilterChannelMix,
	}
}

// ToggleFilter returns a copy of status with one named filter switched.
// Nightcore and vaporwave are mutually exclusive; enabling one disables
// the other since both ride the engine's timescale filter.
func ToggleFilter(status model.FilterStatus, name string, enable bool) (model.FilterStatus, error) {
	switch name {
	case FilterBass:
		status.Bass = enable
	case FilterNightcore:
		status.Nightcore = enable
		if enable {
			status.Vaporwave = false
		}
	case FilterVaporwave:
		status.Vaporwave = enable
		if enable {
			status.Nightcore = false
		}
	case FilterKaraoke:
		status.Karaoke = enable
	case FilterTremolo:
		status.Tremolo = enable
	case FilterVibrato:
		status.Vibrato = enable
	case FilterRotation:
		status.Rotation = enable
	case FilterDistortion:
		status.Distortion = enable
	case FilterChannelMix:
		status.ChannelMix = enable
	default:
		return status, ErrUnknownFilter
	}
	return status, nil
}

// buildFilters translates the filter flags into the engine's filter
// parameter sets.
func buildFilters(status model.FilterStatus) lavalink.Filters {
	var filters lavalink.Filters

	if status.Bass {
		eq := lavalink.Equalizer{0: 0.6, 1: 0.55, 2: 0.45, 3: 0.3}
		filters.Equalizer = &eq
	}
	if status.Nightcore {
		filters.Timescale = &lavalink.Timescale{Speed: 1.2, Pitch: 1.2, Rate: 1.0}
	}
	if status.Vaporwave {
		filters.Timescale = &lavalink.Timescale{Speed: 0.85, Pitch: 0.8, Rate: 1.0}
	}
	if status.Karaoke {
		filters.Karaoke = &lavalink.Karaoke{Level: 1.0, MonoLevel: 1.0, FilterBand: 220, FilterWidth: 100}
	}
	if status.Tremolo {
		filters.Tremolo = &lavalink.Tremolo{Frequency: 2.0, Depth: 0.5}
	}
	if status.Vibrato {
		filters.Vibrato = &lavalink.Vibrato{Frequency: 2.0, Depth: 0.5}
	}
	if status.Rotation {
		filters.Rotation = &lavalink.Rotation{RotationHz: 1}
	}
	if status.Distortion {
		filters.Distortion = &lavalink.Distortion{
			SinOffset: 0, SinScale: 1,
			CosOffset: 0, CosScale: 1,
			TanOffset: 0, TanScale: 1,
			Offset: 0, Scale: 1.2,
		}
	}
	if status.ChannelMix {
		filters.ChannelMix = &lavalink.ChannelMix{
			LeftToLeft: 0.5, LeftToRight: 0.5,
			RightToLeft: 0.5, RightToRight: 0.5,
		}
	}

	return filters
}

// filterStatusOf derives the filter flags back from the engine's filter
// parameter sets. Nightcore and vaporwave are told apart by speed.
func filterStatusOf(filters lavalink.Filters) model.FilterStatus {
	var status model.FilterStatus

	status.Bass = filters.Equalizer != nil
	if filters.Timescale != nil {
		if filters.Timescale.Speed >= 1.0 {
			status.Nightcore = true
		} else {
			status.Vaporwave = true
		}
	}
	status.Karaoke = filters.Karaoke != nil
	status.Tremolo = filters.Tremolo != nil
	status.Vibrato = filters.Vibrato != nil
	status.Rotation = filters.Rotation != nil
	status.Distortion = filters.Distortion != nil
	status.ChannelMix = filters.ChannelMix != nil

	return status
}
