package pivot

import "errors"

var (
	// ErrInvalidFilterValue marks an operator/value shape mismatch,
	// e.g. "in" with a non-list operand. Detected before compilation.
	ErrInvalidFilterValue = errors.New("invalid filter value")

	// ErrQueryCompilation marks an internal compiler invariant violation,
	// e.g. an alias collision that deterministic suffixing cannot resolve.
	ErrQueryCompilation = errors.New("query compilation failed")

	// ErrCacheKeyNotFound is returned on a drill against a missing or
	// expired fingerprint. A client error, not a silent recompute.
	ErrCacheKeyNotFound = errors.New("cache key not found")

	// ErrResultTooLarge is returned when the result exceeds the configured
	// row or column ceilings even after truncation attempts.
	ErrResultTooLarge = errors.New("result too large")
)
