package fetch

import (
	"errors"
	"fmt"
)

// FetchError reports a failed request: either the transport failed (Err set)
// or the server answered with a status the caller could not accept.
type FetchError struct {
	URL        string
	Method     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s failed with status code %d", e.Method, e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a FetchError for a 404 response
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == 404
}
