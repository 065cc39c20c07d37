// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pipfault defines the typed fault taxonomy that the pip-prefetch
// core surfaces to its caller, per the six error kinds: an option is
// rejected or a direct-reference scheme is unsupported (Config); a manifest
// or metadata record fails a structural check (Validation); a project's
// name or version could not be resolved (Metadata); a fetch from an index,
// VCS, or URL origin failed (Fetch); an artifact-store upload failed with
// no idempotent-existing component found (Mirror); or an invariant the
// core itself is responsible for was violated (Internal).
package pipfault

import (
	"errors"
	"fmt"
)

// Kind distinguishes the error taxonomy surfaced to callers.
type Kind int

const (
	KindConfig Kind = iota
	KindValidation
	KindMetadata
	KindFetch
	KindMirror
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindValidation:
		return "ValidationError"
	case KindMetadata:
		return "MetadataError"
	case KindFetch:
		return "FetchError"
	case KindMirror:
		return "MirrorError"
	case KindInternal:
		return "InternalError"
	default:
		return fmt.Sprintf("Error(%d)", int(k))
	}
}

// Error is the single typed-fault type for the whole core. Callers that
// need to distinguish kinds should use errors.As and inspect Kind, rather
// than matching on string content.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Config builds a ConfigError: a rejected option, an unsupported
// direct-reference scheme, or a C1 path that escapes the project directory.
func Config(format string, args ...interface{}) *Error {
	return newf(KindConfig, format, args...)
}

// Validation builds a ValidationError: an unpinned version, a malformed or
// missing hash, a non-git VCS requirement, a bad git ref, an unknown
// option, or a dangling option value.
func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

// Metadata builds a MetadataError: the project name or version could not
// be resolved by C1.
func Metadata(format string, args ...interface{}) *Error {
	return newf(KindMetadata, format, args...)
}

// Fetch builds a FetchError: an index query failed, no candidate matched,
// every candidate was yanked, an HTTP call failed, a checksum mismatched,
// or an sdist lacked PKG-INFO.
func Fetch(format string, args ...interface{}) *Error {
	return newf(KindFetch, format, args...)
}

// Mirror builds a MirrorError: an artifact-store upload failed and no
// idempotent-existing component was found.
func Mirror(format string, args ...interface{}) *Error {
	return newf(KindMirror, format, args...)
}

// Internal builds an InternalError: an impossible requirement kind or
// other bug path that should never be reachable from valid input.
func Internal(format string, args ...interface{}) *Error {
	return newf(KindInternal, format, args...)
}

// Is reports whether err is a *Error of the given kind, anywhere in its
// chain.
func Is(err error, kind Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}
