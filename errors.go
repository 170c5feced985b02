// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2026 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package sigdb

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound indicates that the path supplied for a signature database
	// source does not exist. This is tolerated when loading the system databases.
	ErrSourceNotFound = errors.New("source does not exist")

	// ErrSourceAccessDenied indicates that the path supplied for a signature database
	// source could not be opened because of insufficient permissions.
	ErrSourceAccessDenied = errors.New("permission denied")

	// ErrMalformedSource is returned when a signature database contains a structurally
	// inconsistent EFI_SIGNATURE_LIST. A corrupt database is never treated as empty.
	ErrMalformedSource = errors.New("malformed signature database")
)

// SourceError is returned from any function that loads a signature database source,
// and identifies the path of the offending source.
type SourceError struct {
	Path string
	err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("cannot load signature database %q: %v", e.Path, e.err)
}

func (e *SourceError) Unwrap() error {
	return e.err
}

// MalformedSignatureListError describes a structurally invalid EFI_SIGNATURE_LIST
// header at a specific byte offset of a signature database.
type MalformedSignatureListError struct {
	Offset int
	msg    string
}

func (e *MalformedSignatureListError) Error() string {
	return fmt.Sprintf("invalid signature list at offset %d: %s", e.Offset, e.msg)
}

func (e *MalformedSignatureListError) Is(target error) bool {
	return target == ErrMalformedSource
}

// verificationError is used internally to describe why a certificate in a signature
// database could not be used to verify a signature. It never escapes a search.
type verificationError struct {
	step string
	err  error
}

func (e *verificationError) Error() string {
	if e.err == nil {
		return e.step
	}
	return fmt.Sprintf("%s: %v", e.step, e.err)
}

func (e *verificationError) Unwrap() error {
	return e.err
}
