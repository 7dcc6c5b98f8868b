package content

import "fmt"

// ErrorKind is the fixed taxonomy of content fetch failures. Kinds decide
// retry behavior and are persisted on the item for later inspection.
type ErrorKind string

const (
	KindInvalidURL        ErrorKind = "InvalidURL"
	KindProblematicDomain ErrorKind = "ProblematicDomain"
	KindNotFound          ErrorKind = "NotFound"
	KindForbidden         ErrorKind = "Forbidden"
	KindPaywalled         ErrorKind = "Paywalled"
	KindRateLimited       ErrorKind = "RateLimited"
	KindTimeout           ErrorKind = "Timeout"
	KindConnectionError   ErrorKind = "ConnectionError"
	KindTooManyRedirects  ErrorKind = "TooManyRedirects"
	KindUnicodeError      ErrorKind = "UnicodeError"
	KindHTTPError         ErrorKind = "HTTPError"
	KindConversionError   ErrorKind = "ConversionError"
	KindUnexpectedError   ErrorKind = "UnexpectedError"
)

// FetchError is a structured, per-item failure. It never aborts a batch.
type FetchError struct {
	URL        string
	Kind       ErrorKind
	Message    string
	StatusCode int
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s for %s: %s (status: %d)", e.Kind, e.URL, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s for %s: %s", e.Kind, e.URL, e.Message)
}

// Retryable reports whether another attempt could plausibly succeed.
// Timeouts and connection resets are always transient; HTTP failures only
// for the classic retryable status codes. Blocklisted domains, 4xx access
// failures and malformed URLs are permanent.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnectionError:
		return true
	case KindRateLimited:
		return true
	case KindHTTPError:
		switch e.StatusCode {
		case 500, 502, 503, 504:
			return true
		}
	}
	return false
}
