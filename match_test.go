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

package sigdb_test

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"strings"

	efi "github.com/canonical/go-efilib"
	. "gopkg.in/check.v1"

	. "github.com/snapcore/sigdb"
	"github.com/snapcore/sigdb/internal/efitest"
	"github.com/snapcore/sigdb/internal/testutil"
)

type matchSuite struct{}

var _ = Suite(&matchSuite{})

func (s *matchSuite) TearDownTest(c *C) {
	SetLogger(nil)
}

func (s *matchSuite) loadDigests(c *C, db *Database, set Set, name string, alg crypto.Hash, digests ...[]byte) *Source {
	path := writeFile(c, c.MkDir(), name, efitest.MakeSignatureDatabase(c, efitest.NewSignatureListDigests(c, alg, testOwnerGuid, digests...)))
	src, err := db.AddSource(set, FileSource, path)
	c.Assert(err, IsNil)
	return src
}

func (s *matchSuite) TestSearchEmpty(c *C) {
	db := NewDatabase()
	m, err := db.Search(Allow, PredicateFunc(func(*SignatureEntry) bool { return true }))
	c.Check(err, IsNil)
	c.Check(m, IsNil)
}

func (s *matchSuite) TestSearchOrderAndShortCircuit(c *C) {
	db := NewDatabase()
	first := s.loadDigests(c, db, Allow, "first.esl", crypto.SHA256, testutil.DecodeHexString(c, "0101010101010101010101010101010101010101010101010101010101010101"))
	second := s.loadDigests(c, db, Allow, "second.esl", crypto.SHA256,
		testutil.DecodeHexString(c, "0202020202020202020202020202020202020202020202020202020202020202"),
		testutil.DecodeHexString(c, "0303030303030303030303030303030303030303030303030303030303030303"))

	var visited []byte
	m, err := db.Search(Allow, PredicateFunc(func(entry *SignatureEntry) bool {
		visited = append(visited, entry.Data[0])
		return entry.Data[0] == 0x03
	}))
	c.Assert(err, IsNil)
	c.Assert(m, NotNil)
	c.Check(m.Set, Equals, Allow)
	c.Check(m.Source, Equals, second)
	c.Check(m.Entry.Type, Equals, efi.CertSHA256Guid)
	c.Check(m.Entry.Owner, Equals, testOwnerGuid)

	// The most recently added source is searched first, and the search stops
	// at the first match.
	c.Check(visited, DeepEquals, []byte{0x02, 0x03})

	visited = nil
	m, err = db.Search(Allow, PredicateFunc(func(entry *SignatureEntry) bool {
		visited = append(visited, entry.Data[0])
		return entry.Data[0] == 0x01
	}))
	c.Assert(err, IsNil)
	c.Assert(m, NotNil)
	c.Check(m.Source, Equals, first)
	c.Check(visited, DeepEquals, []byte{0x02, 0x03, 0x01})
}

func (s *matchSuite) TestSearchSelectsChain(c *C) {
	db := NewDatabase()
	s.loadDigests(c, db, Allow, "db.esl", crypto.SHA256, make([]byte, 32))

	m, err := db.Search(Deny, PredicateFunc(func(*SignatureEntry) bool { return true }))
	c.Check(err, IsNil)
	c.Check(m, IsNil)

	m, err = db.Search(Allow, PredicateFunc(func(*SignatureEntry) bool { return true }))
	c.Check(err, IsNil)
	c.Check(m, NotNil)
}

func (s *matchSuite) TestSearchMalformed(c *C) {
	db := NewDatabase()
	s.loadDigests(c, db, Deny, "good.esl", crypto.SHA256, make([]byte, 32))

	l := &efitest.RawSignatureList{Type: efi.CertSHA256Guid, ListSize: 76, SigSize: 8, Body: make([]byte, 48)}
	db.Add(Deny, NewUncheckedSource("bad.esl", l.Bytes()))

	m, err := db.Search(Deny, PredicateFunc(func(*SignatureEntry) bool { return false }))
	c.Check(err, ErrorMatches, `cannot load signature database "/bad.esl": cannot search dbx: invalid signature list at offset 0: SignatureSize is too small for the signature owner`)
	c.Check(err, testutil.ErrorIs, ErrMalformedSource)
	c.Check(m, IsNil)
}

func (s *matchSuite) TestSearchLogs(c *C) {
	logs := captureLogs(c)

	db := NewDatabase()
	s.loadDigests(c, db, Allow, "db.esl", crypto.SHA256, make([]byte, 32))
	_, err := db.Search(Allow, PredicateFunc(func(*SignatureEntry) bool { return false }))
	c.Check(err, IsNil)
	c.Check(strings.Contains(logs.String(), `msg="searching signature database" set=db source=db.esl`), testutil.IsTrue)
}

func (s *matchSuite) TestCheckHashSHA256(c *C) {
	image := []byte("foo")
	digests := ComputeDigests(image)

	db := NewDatabase()
	s.loadDigests(c, db, Allow, "db.esl", crypto.SHA256, make([]byte, 32), digests.SHA256)

	m, err := db.CheckHash(Allow, digests)
	c.Assert(err, IsNil)
	c.Assert(m, NotNil)
	c.Check(m.Entry.Data, DeepEquals, digests.SHA256)
	c.Check(m.Source.Name, Equals, "db.esl")
}

func (s *matchSuite) TestCheckHashSingleByteFlip(c *C) {
	digests := ComputeDigests([]byte("foo"))

	for i := range digests.SHA256 {
		flipped := make([]byte, len(digests.SHA256))
		copy(flipped, digests.SHA256)
		flipped[i] ^= 0x01

		db := NewDatabase()
		s.loadDigests(c, db, Allow, "db.esl", crypto.SHA256, flipped)

		m, err := db.CheckHash(Allow, digests)
		c.Check(err, IsNil)
		c.Check(m, IsNil, Commentf("byte %d", i))
	}
}

func (s *matchSuite) TestCheckHashSHA1(c *C) {
	digests := ComputeDigests([]byte("bar"))

	db := NewDatabase()
	s.loadDigests(c, db, Deny, "dbx.esl", crypto.SHA1, digests.SHA1)

	m, err := db.CheckHash(Deny, digests)
	c.Assert(err, IsNil)
	c.Assert(m, NotNil)
	c.Check(m.Entry.Type, Equals, efi.CertSHA1Guid)

	// A SHA-1 entry is never compared against the SHA-256 digest.
	m, err = db.CheckHash(Deny, Digests{SHA256: digests.SHA256})
	c.Check(err, IsNil)
	c.Check(m, IsNil)
}

func (s *matchSuite) TestComputeDigests(c *C) {
	data := []byte("some data")
	digests := ComputeDigests(data)

	h256 := sha256.Sum256(data)
	h1 := sha1.Sum(data)
	c.Check(digests.SHA256, DeepEquals, h256[:])
	c.Check(digests.SHA1, DeepEquals, h1[:])
}

func (s *matchSuite) TestHashPredicate(c *C) {
	digest := sha256.Sum256([]byte("foo"))
	pred := &HashPredicate{Digests: Digests{SHA256: digest[:]}}

	for _, t := range []struct {
		desc  string
		entry *SignatureEntry
		match bool
	}{
		{"exact", &SignatureEntry{Type: efi.CertSHA256Guid, Data: digest[:]}, true},
		{"trailing bytes", &SignatureEntry{Type: efi.CertSHA256Guid, Data: append(digest[:], 0xff, 0xff)}, true},
		{"short", &SignatureEntry{Type: efi.CertSHA256Guid, Data: digest[:31]}, false},
		{"empty", &SignatureEntry{Type: efi.CertSHA256Guid}, false},
		{"wrong type", &SignatureEntry{Type: efi.CertX509Guid, Data: digest[:]}, false},
		{"sha1 without digest", &SignatureEntry{Type: efi.CertSHA1Guid, Data: digest[:20]}, false},
	} {
		c.Check(pred.Matches(t.entry), Equals, t.match, Commentf(t.desc))
	}
}

func (s *matchSuite) TestHashPredicateWrongDigestLength(c *C) {
	pred := &HashPredicate{Digests: Digests{SHA256: make([]byte, 20)}}
	c.Check(pred.Matches(&SignatureEntry{Type: efi.CertSHA256Guid, Data: make([]byte, 32)}), Equals, false)
}
