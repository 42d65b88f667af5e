package query

import "errors"

// GenericErrorMessage is the only failure text that reaches published state.
const GenericErrorMessage = "something went wrong"

var (
	// ErrLoad wraps any failure while loading the dataset or building the index.
	ErrLoad = errors.New("loading dataset")
	// ErrSearch wraps any failure while searching or grouping.
	ErrSearch = errors.New("searching index")
	// ErrNotReady is returned by lookups issued before the index is built.
	ErrNotReady = errors.New("index not ready")
	// ErrUnknownRecord is returned by Lookup for an id that is not indexed.
	ErrUnknownRecord = errors.New("unknown record")
)
