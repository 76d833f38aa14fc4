package oauth

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	// ErrNotConnected means the user never connected the channel.
	ErrNotConnected = errors.New("youtube channel is not connected")

	// ErrRefreshUnavailable means the access token expired and no refresh
	// token is stored, so the user must reconnect.
	ErrRefreshUnavailable = errors.New("access token expired and no refresh token is stored")

	// ErrInvalidState is returned for tampered, expired or foreign OAuth state.
	ErrInvalidState = errors.New("invalid oauth state")
)

// RefreshFailedError is returned when the provider rejects a refresh or the
// request cannot be completed. StatusCode is 0 for transport failures.
type RefreshFailedError struct {
	StatusCode int
	Payload    string
	Err        error
}

func (e *RefreshFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed with status %d: %s", e.StatusCode, e.Payload)
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}

// newRefreshFailed extracts the provider response from an oauth2 error.
func newRefreshFailed(err error) *RefreshFailedError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &RefreshFailedError{StatusCode: status, Payload: string(re.Body), Err: err}
	}
	return &RefreshFailedError{Payload: err.Error(), Err: err}
}
