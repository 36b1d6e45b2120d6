package core

import "errors"

var (
	// ErrEmptyDataset is returned when no selected file yields a valid row.
	// Callers must report it and stay in the "not loaded" state.
	ErrEmptyDataset = errors.New("empty dataset: no valid reservation rows found")

	// ErrPersistence wraps failures writing the shared store. The in-memory
	// reservation set is left unchanged when it is returned.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotLoaded is returned by read operations before any data is loaded.
	ErrNotLoaded = errors.New("no reservation data loaded")

	// ErrNoFiles is returned when ingestion is called without input files.
	ErrNoFiles = errors.New("no file provided")

	// ErrTooManyIngests is returned when all ingest slots stay occupied for
	// the configured wait time.
	ErrTooManyIngests = errors.New("too many concurrent ingests, please try again later")
)
