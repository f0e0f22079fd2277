package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResult marks a stage that produced zero rows. Fatal to the run.
	ErrEmptyResult = errors.New("empty result")
	// ErrDegenerateFit marks a (year, scale) unit whose breakpoint regression could not be fit.
	ErrDegenerateFit = errors.New("degenerate fit")
	// ErrMalformedInput marks a missing column or a value of the wrong type.
	ErrMalformedInput = errors.New("malformed input")
)

// EmptyResultError reports which stage came up empty.
type EmptyResultError struct {
	Stage string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, ErrEmptyResult)
}

func (e *EmptyResultError) Unwrap() error { return ErrEmptyResult }

// DegenerateFitError reports why a unit could not be segmented.
type DegenerateFitError struct {
	Year   int
	Scale  string
	Reason string
}

func (e *DegenerateFitError) Error() string {
	if e.Scale == "" {
		return fmt.Sprintf("%v: %s", ErrDegenerateFit, e.Reason)
	}
	return fmt.Sprintf("%v for %s: %s", ErrDegenerateFit, ModelKey(e.Year, e.Scale), e.Reason)
}

func (e *DegenerateFitError) Unwrap() error { return ErrDegenerateFit }

// MalformedInputError names the offending field.
type MalformedInputError struct {
	Field  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrMalformedInput, e.Field, e.Reason)
}

func (e *MalformedInputError) Unwrap() error { return ErrMalformedInput }
