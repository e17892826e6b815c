package search

import "errors"

// ErrProviderUnavailable indicates the search provider could not be reached
// or returned a server error. Retryable on the next scheduled pass.
var ErrProviderUnavailable = errors.New("search provider unavailable")

// ErrProviderBadResponse indicates the provider returned a payload that could
// not be parsed. Callers treat this as an empty result, not a fatal error.
var ErrProviderBadResponse = errors.New("search provider returned an unparsable response")
