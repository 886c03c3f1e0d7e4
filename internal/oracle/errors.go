package oracle

import (
	"errors"
	"fmt"
)

// ErrMalformedOutput means the model replied but no JSON object could be
// recovered from the text.
var ErrMalformedOutput = errors.New("no json object in model output")

// ExhaustedError is returned once every model in the fallback chain has been
// tried without success. It carries the last underlying error.
type ExhaustedError struct {
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all models failed: last error: %v", e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}
