package domain

import "errors"

var (
	// ErrIndexUnbuilt is returned when a query arrives before any chunk was indexed.
	ErrIndexUnbuilt = errors.New("index not built")

	// ErrSignalUnavailable marks a single retrieval channel that failed or timed out.
	ErrSignalUnavailable = errors.New("retrieval signal unavailable")

	// ErrExpansionFailed marks a generative expansion call that failed or timed out.
	ErrExpansionFailed = errors.New("query expansion failed")

	// ErrAllSignalsUnavailable is returned when no ranking is possible.
	ErrAllSignalsUnavailable = errors.New("all retrieval signals unavailable")

	// ErrBadConfig is returned for configuration rejected at construction time.
	ErrBadConfig = errors.New("invalid configuration")

	ErrNotFound = errors.New("not found")
)
