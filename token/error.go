package token

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// CodeAuthCodeRedeemed is the provider's numeric code for "authorization
// code already redeemed". Re-presenting an already-exchanged code is a
// benign double submission, and callers treat this one code as success.
const CodeAuthCodeRedeemed = 54005

// ProviderError is a failure reported by the identity provider's token
// endpoint. ErrorCodes carries the provider's numeric code list used for
// fine-grained retry decisions; it is preserved verbatim from the error
// body and never swallowed.
type ProviderError struct {
	// Code is the OAuth2 error identifier, e.g. "invalid_grant".
	Code string `json:"error"`
	// Message is the provider's human-readable description.
	Message string `json:"error_description"`
	// ErrorCodes lists the provider's numeric sub-codes.
	ErrorCodes []int `json:"error_codes"`
	// Status is the HTTP status of the token-endpoint response.
	Status int `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("token: provider error %q: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("token: provider error %q", e.Code)
}

// HasCode reports whether the provider attached the given numeric code.
func (e *ProviderError) HasCode(code int) bool {
	for _, c := range e.ErrorCodes {
		if c == code {
			return true
		}
	}
	return false
}

// asProviderError converts an oauth2 retrieval failure into a
// *ProviderError, parsing the provider's raw error body for the numeric
// code list. Transport-level failures (no provider response) pass through
// unchanged as undifferentiated errors.
func asProviderError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	pe := &ProviderError{
		Code:    re.ErrorCode,
		Message: re.ErrorDescription,
	}
	if re.Response != nil {
		pe.Status = re.Response.StatusCode
	}
	// The structured fields above come from the standard error response;
	// the numeric error_codes list only exists in the raw body.
	_ = json.Unmarshal(re.Body, pe)
	return pe
}

// IsCodeRedeemed reports whether err's chain carries a provider failure
// whose error-code list contains CodeAuthCodeRedeemed. Any other failure
// shape is an undifferentiated authorization failure and yields false.
func IsCodeRedeemed(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.HasCode(CodeAuthCodeRedeemed)
}

// Message extracts the provider's human-readable message from err, or ""
// when err carries none.
func Message(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return ""
}
