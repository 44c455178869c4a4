package solar

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means the endpoint answered but had nothing for the request,
	// typically an HTML page where ASCII data was expected.
	ErrNoData = errors.New("no data available")
	// ErrMalformed means the body is not in the expected JSON/ASCII shape.
	ErrMalformed = errors.New("malformed response")
	// ErrTooLarge means the body was cut at the client's size cap.
	ErrTooLarge = fmt.Errorf("%w: response too large", ErrMalformed)
)

// HTTPError is a non-success HTTP status.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
