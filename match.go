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
	"io"

	"golang.org/x/xerrors"
)

// Predicate is used to test entries during a search of a signature database.
type Predicate interface {
	// Matches returns true if the supplied entry satisfies this predicate.
	// An entry that can't be evaluated doesn't match.
	Matches(entry *SignatureEntry) bool
}

// PredicateFunc adapts an ordinary function to a Predicate.
type PredicateFunc func(entry *SignatureEntry) bool

// Matches implements [Predicate.Matches].
func (fn PredicateFunc) Matches(entry *SignatureEntry) bool {
	return fn(entry)
}

// Match describes the first entry found by Database.Search.
type Match struct {
	Set    Set
	Source *Source
	Entry  *SignatureEntry
}

// Search tests every entry of every source in the specified chain against the
// supplied predicate, and returns the first entry that matches. Sources are
// searched in the order returned by Sources, and entries in the order in which
// they appear in each source. If no entry matches, (nil, nil) is returned.
//
// The only errors returned from this are for malformed sources, which will
// match ErrMalformedSource.
func (d *Database) Search(set Set, pred Predicate) (*Match, error) {
	for src := *d.head(set); src != nil; src = src.next {
		logger.Debug("searching signature database", "set", set, "source", src.Name)

		w := src.Entries()
		for {
			entry, err := w.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, &SourceError{Path: src.Path, err: xerrors.Errorf("cannot search %v: %w", set, err)}
			}
			if pred.Matches(entry) {
				return &Match{Set: set, Source: src, Entry: entry}, nil
			}
		}
	}

	return nil, nil
}
