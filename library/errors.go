package library

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMemberNotFound is returned when a member ID matches no record.
var ErrMemberNotFound = errors.New("member not found")

// ValidationError rejects a registration before anything is written.
type ValidationError struct {
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
	}
	return e.Reason
}

// IndexError reports a mark-paid against a row that does not exist.
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("member index %d out of range (have %d members)", e.Index, e.Count)
}

// StoreCorruptError means the store file exists but does not match the schema.
type StoreCorruptError struct {
	Path string
	Line int
	Err  error
}

func (e *StoreCorruptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("store %s corrupt at line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("store %s corrupt: %v", e.Path, e.Err)
}

func (e *StoreCorruptError) Unwrap() error { return e.Err }
