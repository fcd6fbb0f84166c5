// Package errs classifies the errors surfaced by the validation pipeline.
// Parse and IO errors abort validation of a single file; everything else is
// wrapped with fmt.Errorf and passed through unchanged.
package errs

import (
	"errors"
	"fmt"
)

// Class identifies how a caller should treat an error.
type Class int

const (
	// ClassParse marks malformed input: bad grammar, unknown format signature.
	ClassParse Class = iota
	// ClassIO marks a file that could not be opened or read.
	ClassIO
	// ClassConfig marks an invalid configuration value.
	ClassConfig
	// ClassProvider marks a failing external collaborator (AI, history store).
	ClassProvider
)

// String returns the string representation of Class
func (c Class) String() string {
	switch c {
	case ClassParse:
		return "parse"
	case ClassIO:
		return "io"
	case ClassConfig:
		return "config"
	case ClassProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// Standard error variables
var (
	ErrUnknownFormat  = errors.New("unrecognized file format")
	ErrUnexpectedEOF  = errors.New("unexpected end of input")
	ErrUnbalanced     = errors.New("unbalanced parentheses")
	ErrNoProvider     = errors.New("no AI provider available")
	ErrNotImplemented = errors.New("not implemented")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class Class
	Op    string
	Path  string
	Err   error
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	switch {
	case e.Path != "" && e.Op != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Class, e.Op, e.Path, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s %s: %v", e.Class, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Parse wraps err as a parse error. A nil err yields nil.
func Parse(op string, err error) error {
	return wrap(ClassParse, op, "", err)
}

// ParseFile is Parse with the offending file attached.
func ParseFile(op, path string, err error) error {
	return wrap(ClassParse, op, path, err)
}

// IO wraps err as an IO error.
func IO(op, path string, err error) error {
	return wrap(ClassIO, op, path, err)
}

// Config wraps err as a configuration error.
func Config(op string, err error) error {
	return wrap(ClassConfig, op, "", err)
}

// Provider wraps err as a collaborator failure.
func Provider(op string, err error) error {
	return wrap(ClassProvider, op, "", err)
}

func wrap(class Class, op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) && ce.Class == class && path == "" {
		return err
	}
	return &ClassifiedError{Class: class, Op: op, Path: path, Err: err}
}

// ClassOf returns the class of err and whether it was classified at all.
func ClassOf(err error) (Class, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// IsParse reports whether err is a parse error.
func IsParse(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassParse
}

// IsIO reports whether err is an IO error.
func IsIO(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassIO
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassConfig
}
