package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStoreTimeout = errors.New("store guard acquisition timed out")
	ErrStoreClosed  = errors.New("store is closed")
)

type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	line := e.Line
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return fmt.Sprintf("malformed line %q: %s", line, e.Reason)
}

func NewParseError(line, reason string) *ParseError {
	return &ParseError{Line: line, Reason: reason}
}

type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(op string, err error) *StoreError {
	var se *StoreError
	if errors.As(err, &se) {
		return se
	}
	return &StoreError{Op: op, Err: err}
}

type MissingArtifactError struct {
	Component string
	Path      string
	Err       error
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("classifier %s not found at %s (run the offline training procedure first): %v",
		e.Component, e.Path, e.Err)
}

func (e *MissingArtifactError) Unwrap() error {
	return e.Err
}

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
