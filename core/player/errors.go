package player

import "errors"

var (
	// ErrTrackNotFound means the queue holds no entry at the requested index.
	ErrTrackNotFound = errors.New("track not found")

	// ErrVolumeRange means the requested volume is outside 0-100.
	ErrVolumeRange = errors.New("volume out of range")

	// ErrBadRepeatMode means the repeat mode name is not recognized.
	ErrBadRepeatMode = errors.New("invalid repeat mode")
)
