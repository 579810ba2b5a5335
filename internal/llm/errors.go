package llm

import (
	"errors"
	"fmt"
)

// ErrAllModelsExhausted matches every *AllModelsExhaustedError.
var ErrAllModelsExhausted = errors.New("all models exhausted")

// AllModelsExhaustedError is returned when no model produced a completion.
// Last is the error of the final attempt.
type AllModelsExhaustedError struct {
	Attempts int
	Last     error
}

func (e *AllModelsExhaustedError) Error() string {
	return fmt.Sprintf("all models failed after %d attempts, last error: %v", e.Attempts, e.Last)
}

func (e *AllModelsExhaustedError) Unwrap() error { return e.Last }

func (e *AllModelsExhaustedError) Is(target error) bool {
	return target == ErrAllModelsExhausted
}
