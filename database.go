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
	"fmt"
)

// Set identifies one of the two chains of a Database.
type Set int

const (
	// Allow corresponds to the authorized signature database (db).
	Allow Set = iota

	// Deny corresponds to the forbidden signature database (dbx).
	Deny
)

func (s Set) String() string {
	switch s {
	case Allow:
		return "db"
	case Deny:
		return "dbx"
	default:
		return fmt.Sprintf("Set(%d)", int(s))
	}
}

// Database is a collection of signature database sources, split into an
// allow chain and a deny chain. A Database is populated once and is then only
// read, so it is not safe to add sources whilst searching from other goroutines.
type Database struct {
	chains [2]*Source
}

// NewDatabase returns a new empty database.
func NewDatabase() *Database {
	return new(Database)
}

func (d *Database) head(set Set) **Source {
	switch set {
	case Allow, Deny:
		return &d.chains[set]
	default:
		panic(fmt.Sprintf("invalid signature database set %v", set))
	}
}

// Add adds the supplied source to the start of the specified chain. A source
// can only be added to a single chain of a single database.
func (d *Database) Add(set Set, src *Source) {
	if src.added {
		panic("source has already been added to a database")
	}
	head := d.head(set)
	src.next = *head
	src.added = true
	*head = src
}

// AddSource loads the signature database at the specified path with LoadSource
// and adds it to the start of the specified chain.
func (d *Database) AddSource(set Set, kind SourceKind, path string) (*Source, error) {
	src, err := LoadSource(kind, path)
	if err != nil {
		return nil, err
	}
	d.Add(set, src)
	return src, nil
}

// Sources returns the sources of the specified chain, in the order in which
// they are searched. This is the reverse of the order in which they were added.
func (d *Database) Sources(set Set) (sources []*Source) {
	for src := *d.head(set); src != nil; src = src.next {
		sources = append(sources, src)
	}
	return sources
}

// IsEmpty indicates whether the specified chain has no sources.
func (d *Database) IsEmpty(set Set) bool {
	return *d.head(set) == nil
}

// Close releases the buffers associated with every source in this database.
func (d *Database) Close() error {
	var firstErr error
	for i := range d.chains {
		for src := d.chains[i]; src != nil; {
			next := src.next
			if err := src.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			src.next = nil
			src = next
		}
		d.chains[i] = nil
	}
	return firstErr
}
