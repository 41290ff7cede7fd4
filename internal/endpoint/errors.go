package endpoint

import (
	"fmt"
)

// InvalidResponseError means the endpoint answered with something that is not
// its JSON API, usually a login or error page because the configured address
// is stale or the deployment does not allow anonymous access.
type InvalidResponseError struct {
	Status  int
	Snippet string
	Err     error
}

func (e *InvalidResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid endpoint response (http %d): %s: %q", e.Status, e.Err, e.Snippet)
	}
	return fmt.Sprintf("invalid endpoint response (http %d): %q", e.Status, e.Snippet)
}

func (e *InvalidResponseError) Unwrap() error {
	return e.Err
}

// Guidance is shown to a user who ran into an InvalidResponseError.
func (e *InvalidResponseError) Guidance() string {
	return "the endpoint did not return JSON. Check that the address is the latest deployment " +
		"(ends in /exec) and that it is deployed to run for anyone, then set it again with `mfsync endpoint set`."
}

// ApplicationError is an explicit {"status": "error"} from the endpoint.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("endpoint error: %s", e.Message)
}

// NetworkError is the last transport failure after every attempt failed.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("endpoint unreachable after %d attempts: %s", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
