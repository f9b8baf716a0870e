/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errs defines the scheduler's error taxonomy as typed errors
// instead of an exception hierarchy, so callers dispatch on Kind() rather
// than on string matching or a chain of type assertions.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the scheduler distinguishes.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindAuthz              Kind = "AUTHZ"
	KindNotFound           Kind = "NOT_FOUND"
	KindConflictTransition Kind = "CONFLICT_TRANSITION"
	KindBusy               Kind = "BUSY"
	KindTransientBackend   Kind = "TRANSIENT_BACKEND"
	KindUnschedulable      Kind = "UNSCHEDULABLE"
	KindFatal              Kind = "FATAL"
)

// Error is a taxonomy-tagged error. Wrap with fmt.Errorf("...: %w", err) as
// usual; errors.As still finds the *Error beneath.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err isn't a tagged *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Validation(format string, a ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, a...))
}

func Authz(format string, a ...any) *Error {
	return New(KindAuthz, fmt.Sprintf(format, a...))
}

func NotFound(format string, a ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, a...))
}

func ConflictTransition(format string, a ...any) *Error {
	return New(KindConflictTransition, fmt.Sprintf(format, a...))
}

func Busy(format string, a ...any) *Error {
	return New(KindBusy, fmt.Sprintf(format, a...))
}

func Transient(cause error, format string, a ...any) *Error {
	return Wrap(KindTransientBackend, fmt.Sprintf(format, a...), cause)
}

func Unschedulable(format string, a ...any) *Error {
	return New(KindUnschedulable, fmt.Sprintf(format, a...))
}

func Fatal(cause error, format string, a ...any) *Error {
	return Wrap(KindFatal, fmt.Sprintf(format, a...), cause)
}
