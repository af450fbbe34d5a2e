package timeline

import "errors"

var (
	// ErrParse is returned when the engine rejects a generated graph description.
	// The engine's *engine.ParseError stays reachable through errors.As.
	ErrParse = errors.New("cannot parse graph description")

	// ErrMissingStage is returned when a stage named in the description is
	// absent from the parsed graph.
	ErrMissingStage = errors.New("required stage missing")

	// ErrProbeTransition is returned when the reference graph cannot be paused.
	ErrProbeTransition = errors.New("cannot run reference segment to get current caps")

	// ErrMissingFormat is returned when the negotiated caps carry no pixel format.
	ErrMissingFormat = errors.New("can not get format from sink caps")

	// ErrMissingGeometry is returned when width or height is not negotiated.
	ErrMissingGeometry = errors.New("can not get width and height from sink caps")

	// ErrMissingFrameRate is returned when no usable frame rate is negotiated.
	ErrMissingFrameRate = errors.New("can not get framerate from sink caps")

	// ErrPlaybackTransition is returned when the first segment cannot start.
	ErrPlaybackTransition = errors.New("playback transition failed")

	// ErrInvalidDescriptor is returned for descriptors breaking their invariants.
	ErrInvalidDescriptor = errors.New("invalid capability descriptor")
)
