package table

import "errors"

var (
	// ErrKeyNotFound is returned by Get and Remove when the key is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrDuplicateKey is returned by Add when the key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrPersistence wraps any failure to load or flush the backing file.
	// When a flush fails the in-memory mapping keeps its previous contents.
	ErrPersistence = errors.New("table persistence failure")
)
