package alignment

import "errors"

var (
	// ErrUnknownCategory is returned when a value is outside its closed taxonomy.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInvalidThreshold is returned for thresholds outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")
	// ErrInvalidPolicy is returned for action policies other than insert or override.
	ErrInvalidPolicy = errors.New("action policy must be insert or override")
	// ErrInvalidPattern is returned when a placeholder pattern does not compile.
	ErrInvalidPattern = errors.New("invalid placeholder pattern")
	// ErrNilInput is returned when Align receives a nil document.
	ErrNilInput = errors.New("input document is required")
)
