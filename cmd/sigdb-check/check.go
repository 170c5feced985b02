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

package main

import (
	"errors"
	"fmt"

	"github.com/snapcore/sigdb"
)

// verdict is the outcome of checking an artifact against a database.
type verdict int

const (
	verdictNotAllowed verdict = iota // no entry in db authorizes the artifact
	verdictAllowed                   // an entry in db authorizes the artifact
	verdictRevoked                   // an entry in dbx forbids the artifact
)

func (v verdict) String() string {
	switch v {
	case verdictNotAllowed:
		return "not allowed"
	case verdictAllowed:
		return "allowed"
	case verdictRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// query describes the artifact to check.
type query struct {
	digests    *sigdb.Digests
	signatures [][]byte // DER encoded PKCS#7 signatures
	content    []byte   // detached content, shared by all signatures
}

type checkResult struct {
	verdict verdict
	match   *sigdb.Match
}

// check tests the artifact against the database. Any match in dbx, by digest or by
// the certificate of any signature, results in verdictRevoked. Otherwise, any match
// in db results in verdictAllowed.
func check(db *sigdb.Database, q *query) (*checkResult, error) {
	if q.digests == nil && len(q.signatures) == 0 {
		return nil, errors.New("nothing to check")
	}

	search := func(set sigdb.Set) (*sigdb.Match, error) {
		if q.digests != nil {
			m, err := db.CheckHash(set, *q.digests)
			if err != nil || m != nil {
				return m, err
			}
		}
		for _, sig := range q.signatures {
			m, err := db.CheckCertificate(set, sig, q.content)
			if err != nil || m != nil {
				return m, err
			}
		}
		return nil, nil
	}

	m, err := search(sigdb.Deny)
	switch {
	case err != nil:
		return nil, err
	case m != nil:
		return &checkResult{verdict: verdictRevoked, match: m}, nil
	}

	m, err = search(sigdb.Allow)
	switch {
	case err != nil:
		return nil, err
	case m != nil:
		return &checkResult{verdict: verdictAllowed, match: m}, nil
	}

	return &checkResult{verdict: verdictNotAllowed}, nil
}
