package series

import "fmt"

// ParseError is returned when a raw series row cannot be parsed.
type ParseError struct {
	// Line is the 1-based line number of the offending row, counting the header.
	Line   int
	Text   string
	Reason string
}

// Error returns the error string.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing series line %d (%q): %s", e.Line, e.Text, e.Reason)
}

// ComputationError is returned when signal derivation is invoked on insufficient data
// or with invalid parameters.
type ComputationError struct {
	Reason string
}

// Error returns the error string.
func (e *ComputationError) Error() string {
	return fmt.Sprintf("computing signal: %s", e.Reason)
}
