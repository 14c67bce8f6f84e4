package momo

import "fmt"

// AuthError reports a failed token exchange: non-2xx response or a body
// missing the access token.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("momo: token exchange failed: %s", e.Body)
	}
	return fmt.Sprintf("momo: token exchange failed: status %d: %s", e.Status, e.Body)
}

// RequestError reports a non-2xx provider response outside the token
// endpoint. Status and Body carry the raw provider reply for logging.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("momo: provider request failed: status %d: %s", e.Status, e.Body)
}

// ValidationError reports a provider call rejected before any network
// traffic, such as a status query with an empty reference id.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("momo: %s", e.Msg)
}
