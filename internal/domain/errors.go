package domain

import "fmt"

// FetchError reports a network or HTTP failure while downloading a monthly file.
// An update that fails this way keeps the previous dataset.
type FetchError struct {
	Month  string
	URL    string
	Status int // 0 when the request never got a response
	Cause  error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s (%s): HTTP %d", e.Month, e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Month, e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ParseError reports malformed input in a monthly file. Line is 1-based; Column
// is the name of the offending field, empty when the whole row is at fault.
type ParseError struct {
	Month  string
	Line   int
	Column string
	Cause  error
}

func (e *ParseError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("parse %s line %d column %s: %v", e.Month, e.Line, e.Column, e.Cause)
	case e.Line > 0:
		return fmt.Sprintf("parse %s line %d: %v", e.Month, e.Line, e.Cause)
	default:
		return fmt.Sprintf("parse %s: %v", e.Month, e.Cause)
	}
}

func (e *ParseError) Unwrap() error { return e.Cause }
