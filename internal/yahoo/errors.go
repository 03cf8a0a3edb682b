package yahoo

import (
	"fmt"
)

// Kind classifies a failed fetch.
type Kind int

const (
	// KindFatal covers everything that must not be retried.
	KindFatal Kind = iota
	// KindNotFound is an HTTP 404 from the provider.
	KindNotFound
	// KindServerTransient is a server-side hiccup (5xx, hangup).
	KindServerTransient
	// KindConnTransient is a transport fault: timeout, reset, incomplete read.
	KindConnTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindServerTransient:
		return "server transient"
	case KindConnTransient:
		return "connection transient"
	default:
		return "fatal"
	}
}

// Transient reports whether a retry may succeed.
func (k Kind) Transient() bool {
	return k == KindServerTransient || k == KindConnTransient
}

// FetchError is returned by Client.Fetch for every failed request.
type FetchError struct {
	Kind     Kind
	Endpoint Endpoint
	Symbol   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Endpoint, e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UnclassifiedResponseError carries a status code the fetcher has no rule for.
type UnclassifiedResponseError struct {
	StatusCode int
	Status     string
}

func (e *UnclassifiedResponseError) Error() string {
	return fmt.Sprintf("unclassified response: %d %s", e.StatusCode, e.Status)
}

// UnsupportedFormatError is returned for a historical response format other than csv or x.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("format %q not supported", e.Format)
}

// UnknownStatError is returned when a stat name is missing from the stat table.
type UnknownStatError struct {
	Name string
}

func (e *UnknownStatError) Error() string {
	return fmt.Sprintf("unknown stat %q", e.Name)
}

// SuffixError is returned when a suffixed number cannot be parsed.
type SuffixError struct {
	Value string
}

func (e *SuffixError) Error() string {
	return fmt.Sprintf("suffix not recognized in %q", e.Value)
}
