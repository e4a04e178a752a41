// Package plugin loads generated parser modules and runs them behind a
// process boundary.
//
// A parser module is a Go source file in package main that declares
//
//	func Parse(pdfPath string) (header []string, rows [][]string, err error)
//
// The loader compiles it together with a small harness into a standalone
// binary; Parse is then invoked by running that binary, which prints the
// table as CSV on stdout. Generated code never runs inside this process.
package plugin

import (
	"context"
	"errors"
	"fmt"
)

// EntryPoint is the signature every parser module must declare.
const EntryPoint = "func Parse(pdfPath string) ([]string, [][]string, error)"

var (
	// ErrNotFound means the module source does not exist.
	ErrNotFound = errors.New("parser module not found")

	// ErrLoad means the module could not be built, typically because it
	// references imports that cannot be resolved.
	ErrLoad = errors.New("parser module failed to load")

	// ErrRuntime means the module was loaded but failed while parsing.
	ErrRuntime = errors.New("parser module failed at runtime")
)

// Loader turns a module source file into a callable Plugin.
type Loader interface {
	Load(ctx context.Context, sourcePath string) (Plugin, error)
}

// Plugin is a loaded parser module.
type Plugin interface {
	// Parse runs the module's entry point and returns its table as CSV,
	// header first.
	Parse(ctx context.Context, pdfPath string) ([]byte, error)

	Close() error
}

// LoadError carries the build output of a module that failed to load.
type LoadError struct {
	Source string
	Output string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	return fmt.Sprintf("build %s: %v", e.Source, e.Err)
}

func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// RuntimeError describes a failed Parse invocation: a returned error, a
// panic, a non-zero exit or a timeout.
type RuntimeError struct {
	Message string
	Err     error
}

func (e *RuntimeError) Error() string {
	return e.Message
}

func (e *RuntimeError) Is(target error) bool {
	return target == ErrRuntime
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
