// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Error codes attached to every load failure.
const (
	CodeCannotOpen        = "PLUGIN_CANNOT_OPEN"
	CodeMissingEntryPoint = "PLUGIN_MISSING_ENTRY_POINT"
	CodeInvalidInstance   = "PLUGIN_INVALID_INSTANCE"
	CodeDuplicateID       = "PLUGIN_DUPLICATE_ID"
	CodeIDsExhausted      = "PLUGIN_IDS_EXHAUSTED"
	CodeUnknownRuntime    = "PLUGIN_UNKNOWN_RUNTIME"
	CodeRegistryClosed    = "PLUGIN_REGISTRY_CLOSED"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrCannotOpen is returned when the library cannot be opened or mapped.
	ErrCannotOpen = errors.New("cannot open plugin library")
	// ErrMissingEntryPoint is returned when the entry symbol is absent or has
	// the wrong signature.
	ErrMissingEntryPoint = errors.New("plugin entry point not found")
	// ErrInvalidInstance is returned when the entry point panics or returns nil.
	ErrInvalidInstance = errors.New("plugin entry point returned no instance")
	// ErrDuplicateID is returned when loading under an id that is in use.
	ErrDuplicateID = errors.New("plugin id already loaded")
	// ErrIDsExhausted is returned when every id is in use.
	ErrIDsExhausted = errors.New("no free plugin id")
	// ErrUnknownRuntime is returned when no loader handles a path.
	ErrUnknownRuntime = errors.New("no runtime for plugin")
	// ErrRegistryClosed is returned when loading into a closed registry.
	ErrRegistryClosed = errors.New("registry is closed")
)

// CannotOpen reports a library that could not be opened.
func CannotOpen(path string, cause error) error {
	return loadError(CodeCannotOpen, ErrCannotOpen, path, cause)
}

// MissingEntryPoint reports an absent or mistyped entry symbol.
func MissingEntryPoint(path, symbol string, cause error) error {
	return oops.Code(CodeMissingEntryPoint).
		In("plugin").
		With("path", path).
		With("symbol", symbol).
		Wrap(join(ErrMissingEntryPoint, cause))
}

// InvalidInstance reports an entry point that did not produce an instance.
func InvalidInstance(path string, cause error) error {
	return loadError(CodeInvalidInstance, ErrInvalidInstance, path, cause)
}

func loadError(code string, sentinel error, path string, cause error) error {
	return oops.Code(code).
		In("plugin").
		With("path", path).
		Wrap(join(sentinel, cause))
}

func join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
