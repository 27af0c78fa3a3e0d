package rag

import "errors"

var (
	// ErrConfiguration is returned for invalid parameters, e.g. chunk overlap >= chunk size
	ErrConfiguration = errors.New("rag: invalid configuration")
	// ErrUnavailable is returned when the model endpoint cannot be reached
	ErrUnavailable = errors.New("rag: model endpoint unavailable")
	// ErrConnection is returned when the vector database cannot be reached
	ErrConnection = errors.New("rag: vector store connection failed")
	// ErrModel is returned when the named model is not loaded on the model server
	ErrModel = errors.New("rag: model not available")
	// ErrCollectionNotFound is returned when reading from a collection that does not exist
	ErrCollectionNotFound = errors.New("rag: collection not found")
)

// IsConnectivity reports whether err is caused by an unreachable model endpoint or database.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrConnection)
}
