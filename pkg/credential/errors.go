package credential

import (
	"errors"

	"golang.org/x/oauth2"
)

// AuthError reports that no bearer credential could be issued. It is fatal to
// the request that needed the token.
type AuthError struct {
	// Description is the identity provider's error description when it sent
	// one, otherwise the underlying error text.
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	return "failed to acquire access token: " + e.Description
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// describe prefers the OAuth2 error_description over the raw error text.
func describe(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorDescription != "" {
			return re.ErrorDescription
		}
		if re.ErrorCode != "" {
			return re.ErrorCode
		}
	}
	return err.Error()
}
