package fst

import "errors"

var (
	// Builder errors. Keys must be inserted exactly once, in strictly
	// increasing byte order.
	ErrDuplicateKey    = errors.New("fst: duplicate key")
	ErrOutOfOrderKey   = errors.New("fst: key out of order")
	ErrBuilderFinished = errors.New("fst: builder already finished")

	// Encode rejects automatons that violate its preconditions.
	ErrNotDeterministic = errors.New("fst: transitions not strictly ordered by label")
	ErrCyclicAutomaton  = errors.New("fst: automaton contains a cycle")
	ErrBadTransition    = errors.New("fst: transition target out of range")

	// Encode resource limits.
	ErrAlphabetOverflow      = errors.New("fst: distinct symbols exceed the configured stride")
	ErrAddressSpaceExhausted = errors.New("fst: slot array would exceed the configured maximum")

	// Serialized form errors.
	ErrBadMagic   = errors.New("fst: bad magic")
	ErrBadVersion = errors.New("fst: unsupported format version")
	ErrCorrupt    = errors.New("fst: structure data corrupt")
)
