package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrRetrievalUnavailable  = errors.New("retrieval unavailable")
	ErrCorpusLoad            = errors.New("corpus load failed")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrEmptyQuery            = errors.New("query must not be empty")
)

// PipelineError ties a failure to the operation that produced it and to one of
// the sentinel kinds above. errors.Is matches both the kind and the cause.
type PipelineError struct {
	Op   string
	Kind error
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewPipelineError(op string, kind, err error) *PipelineError {
	return &PipelineError{Op: op, Kind: kind, Err: err}
}
