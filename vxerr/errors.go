// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package vxerr defines the error taxonomy shared by every
// index package: data corruption, out-of-resource, validation,
// cancellation, and consistency faults.
package vxerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Use errors.Is against these, never direct equality,
// since every returned error wraps one of them with call-site context.
var (
	// ErrCorruption means a page-level or tuple-level invariant
	// was violated. Unrecoverable; the caller should abort the
	// in-flight operation.
	ErrCorruption = errors.New("data corruption")

	// ErrValidation means a configuration value failed a range
	// check before any page was written.
	ErrValidation = errors.New("invalid configuration")

	// ErrCancelled means a worker observed Cancel.Err() != nil
	// (or recovered a cancellation-marker panic) during build.
	ErrCancelled = errors.New("build cancelled")

	// ErrConsistencyFault is not propagated as a hard error: it
	// signals that a payload should be treated as deleted (stale
	// fingerprint, fetch_vector failure). Callers convert it to
	// a (zero, false) result rather than returning it.
	ErrConsistencyFault = errors.New("stale payload treated as deleted")
)

// Corruptf wraps ErrCorruption with a formatted message,
// identifying the precise invariant that failed.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrCorruption)...)
}

// OutOfResource reports an alloc() failure on a page the caller
// guaranteed had enough free space. Per §7 this is modeled as
// corruption: the invariant that guaranteed the space was broken.
func OutOfResource(page uint32, need int) error {
	return Corruptf("page %d: alloc of %d bytes failed though freespace was reserved", page, need)
}

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Cancelled wraps ErrCancelled, optionally attaching the
// underlying cause raised by check().
func Cancelled(cause error) error {
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %s", ErrCancelled, cause)
}

// IsCorruption reports whether err (or anything it wraps) is ErrCorruption.
func IsCorruption(err error) bool { return errors.Is(err, ErrCorruption) }

// IsValidation reports whether err (or anything it wraps) is ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsCancelled reports whether err (or anything it wraps) is ErrCancelled.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }
