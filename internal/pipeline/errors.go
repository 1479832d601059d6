package pipeline

import (
	"errors"
	"fmt"
)

// ExtractionError means the profile summarizer could not produce a valid
// keyword set; nothing downstream can run without one.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("patient profile extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RetrievalError means the trial index could not be searched.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("trial retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err wraps an extraction failure.
func IsExtractionError(err error) bool {
	var extraction *ExtractionError
	return errors.As(err, &extraction)
}

// IsRetrievalError reports whether err wraps a retrieval failure.
func IsRetrievalError(err error) bool {
	var retrieval *RetrievalError
	return errors.As(err, &retrieval)
}
