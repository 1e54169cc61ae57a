// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package eegprep turns continuous EEG recordings into trial tensors and
// decimated wavelet features. The subpackages do the work; this package holds
// the error taxonomy they share.
package eegprep

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound is returned when a recording, index file or artifact is missing.
	ErrNotFound = errors.New("not found")
	// ErrInvalidParameter is returned for out-of-range durations, levels and
	// malformed trials.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidKey is returned for an unsupported action tag.
	ErrInvalidKey = errors.New("invalid key")
	// ErrAssertionMismatch is returned when a computed shape disagrees with
	// the shape actually produced.
	ErrAssertionMismatch = errors.New("assertion mismatch")
	// ErrPermissionDenied is returned when a destination cannot be created or written.
	ErrPermissionDenied = errors.New("permission denied")
)

// Error ties one of the sentinel kinds to the resource it concerns.
type Error struct {
	Kind     error  // One of the Err* sentinels
	Resource string // Path, parameter or key involved
	Err      error  // Underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Resource, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Resource, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf builds an *Error of the given kind with a formatted cause.
func Errorf(kind error, resource, format string, args ...any) error {
	return &Error{Kind: kind, Resource: resource, Err: fmt.Errorf(format, args...)}
}

// Classify maps filesystem errors onto the taxonomy. Errors that already carry
// a kind, and errors with no filesystem meaning, are returned unchanged.
func Classify(resource string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Error{Kind: ErrNotFound, Resource: resource, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &Error{Kind: ErrPermissionDenied, Resource: resource, Err: err}
	}
	return err
}

// SubjectError reports a failure of one stage for one subject.
type SubjectError struct {
	Subject string
	Stage   string
	Err     error
}

func (e *SubjectError) Error() string {
	return fmt.Sprintf("subject %s: %s: %v", e.Subject, e.Stage, e.Err)
}

func (e *SubjectError) Unwrap() error {
	return e.Err
}
