package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrNoOutputDir is returned when the output directory is empty.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrInvalidDelay is returned when a delay bound is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrDelayRange is returned when the minimum delay exceeds the maximum.
	ErrDelayRange = errors.New("invalid delay range: --min-delay must not exceed --max-delay")

	// ErrInvalidMaxDepth is returned when the depth limit is below 1.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be at least 1")

	// ErrInvalidWait is returned when a wait duration is negative.
	ErrInvalidWait = errors.New("invalid wait: must be non-negative")

	// ErrEmptySelector is returned when the item selector is empty.
	ErrEmptySelector = errors.New("empty item selector")

	// ErrInvalidMaxItemX is returned when the sidebar edge is not positive.
	ErrInvalidMaxItemX = errors.New("invalid max item x: must be positive")

	// ErrConflictingResumeFlags is returned when both --resume and --fresh
	// are given.
	ErrConflictingResumeFlags = errors.New("conflicting resume flags: --resume and --fresh cannot be used together")

	// ErrNoDBDir is returned when history is enabled without a directory.
	ErrNoDBDir = errors.New("history enabled but no database directory set")
)
