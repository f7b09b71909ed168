package fhe

import "errors"

// Error taxonomy of the encrypted-field protocol. Caller errors are raised
// before any external call is made; capability errors surface external
// failures without caching them, so a later call may retry.
var (
	// ErrInvalidHandle marks a handle that is not a 32-byte hex identifier.
	ErrInvalidHandle = errors.New("invalid ciphertext handle")

	// ErrInvalidAddress marks a zero or malformed 20-byte address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrAmountOutOfRange marks a value that is negative or does not fit an
	// unsigned 32-bit integer after fixed-point scaling.
	ErrAmountOutOfRange = errors.New("amount out of range")

	// ErrEmptyResult marks an empty or malformed result from the external
	// encryption capability.
	ErrEmptyResult = errors.New("encryption capability returned an empty result")

	// ErrNoValue marks a user-decrypt result that does not contain the
	// requested handle. Usually wrong authorization or a backend mismatch.
	ErrNoValue = errors.New("no value returned for handle")

	// ErrNotAuthorized marks a decrypt attempt by an identity that holds no
	// grant for the handle.
	ErrNotAuthorized = errors.New("identity not authorized for handle")

	// ErrUnsupportedChain marks a chain ID neither backend supports.
	ErrUnsupportedChain = errors.New("unsupported chain id")

	// ErrBackendMismatch marks a session handle used against the wrong
	// backend's expectations.
	ErrBackendMismatch = errors.New("backend variant mismatch")

	// ErrNoSession marks a protocol call made without a live session handle
	// for the active chain.
	ErrNoSession = errors.New("no encryption session for the active chain")
)
