package historical

import "fmt"

// DataNotFoundError is returned when the provider has no historical data for a symbol.
type DataNotFoundError struct {
	Symbol string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("no data found for %s", e.Symbol)
}

// CurrencyNotFoundError is returned when a symbol's trading currency cannot be determined.
type CurrencyNotFoundError struct {
	Symbol string
}

func (e *CurrencyNotFoundError) Error() string {
	return fmt.Sprintf("currency not found for %s", e.Symbol)
}

// InvalidDataError is returned when a payload cannot be parsed into bars.
type InvalidDataError struct {
	Symbol string
	Err    error
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid data for %s: %v", e.Symbol, e.Err)
}

func (e *InvalidDataError) Unwrap() error { return e.Err }

// RetriesExhaustedError wraps the last transient failure once MaxAttempts is reached.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }
