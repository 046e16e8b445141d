package series

import (
	"math"
	"strconv"
	"strings"

	"github.com/dnldd/trends/shared"
)

const (
	// fieldSeparator separates the month key from the interest value in a row.
	fieldSeparator = ","
	// lineSeparator terminates rows. A carriage return preceding it is part of the terminator.
	lineSeparator = "\n"
)

// Record represents a single monthly interest observation.
type Record struct {
	Month    shared.MonthKey
	Interest float64
}

// ParseSeries parses the provided raw series blob into interest records. The first line is
// a header and is skipped, as are empty lines. Records are returned in input order; the
// input is trusted to be chronologically sorted.
func ParseSeries(blob string) ([]Record, error) {
	lines := strings.Split(blob, lineSeparator)
	records := make([]Record, 0, len(lines))
	for idx := 1; idx < len(lines); idx++ {
		line := strings.TrimSuffix(lines[idx], "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		record, err := parseRecord(idx+1, line)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// parseRecord parses a single month_key,interest row.
func parseRecord(lineNo int, line string) (Record, error) {
	fields := strings.Split(line, fieldSeparator)
	if len(fields) != 2 {
		return Record{}, &ParseError{Line: lineNo, Text: line,
			Reason: "expected exactly two fields"}
	}

	month, err := shared.ParseMonthKey(strings.TrimSpace(fields[0]))
	if err != nil {
		return Record{}, &ParseError{Line: lineNo, Text: line, Reason: err.Error()}
	}

	interest, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Record{}, &ParseError{Line: lineNo, Text: line,
			Reason: "interest is not a number"}
	}

	if math.IsNaN(interest) || math.IsInf(interest, 0) {
		return Record{}, &ParseError{Line: lineNo, Text: line,
			Reason: "interest is not a finite number"}
	}

	return Record{Month: month, Interest: interest}, nil
}

// OutOfOrder returns the month keys of records that do not strictly follow their
// predecessor. Out of order or duplicate months silently skew the trailing windows.
func OutOfOrder(records []Record) []shared.MonthKey {
	var keys []shared.MonthKey
	for idx := 1; idx < len(records); idx++ {
		if !records[idx-1].Month.Before(records[idx].Month) {
			keys = append(keys, records[idx].Month)
		}
	}

	return keys
}
