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
	"bytes"
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"

	efi "github.com/canonical/go-efilib"
)

// Digests contains pre-computed digests of the artifact that is being
// checked against a signature database.
type Digests struct {
	SHA256 []byte
	SHA1   []byte
}

// ComputeDigests computes the SHA-256 and SHA-1 digests of the supplied data.
func ComputeDigests(data []byte) Digests {
	h256 := crypto.SHA256.New()
	h256.Write(data)
	h1 := crypto.SHA1.New()
	h1.Write(data)
	return Digests{SHA256: h256.Sum(nil), SHA1: h1.Sum(nil)}
}

// HashPredicate matches EFI_CERT_SHA256_GUID and EFI_CERT_SHA1_GUID entries that
// contain one of the supplied digests. Only the leading digest-sized part of
// each entry is compared. Entries of any other type never match.
type HashPredicate struct {
	Digests
}

// Matches implements [Predicate.Matches].
func (p *HashPredicate) Matches(entry *SignatureEntry) bool {
	var (
		digest []byte
		size   int
	)
	switch entry.Type {
	case efi.CertSHA256Guid:
		digest, size = p.SHA256, crypto.SHA256.Size()
	case efi.CertSHA1Guid:
		digest, size = p.SHA1, crypto.SHA1.Size()
	default:
		return false
	}

	if len(digest) != size || len(entry.Data) < size {
		return false
	}
	return bytes.Equal(entry.Data[:size], digest)
}

// CheckHash searches the specified chain for a SHA-256 or SHA-1 entry that
// matches one of the supplied digests.
func (d *Database) CheckHash(set Set, digests Digests) (*Match, error) {
	return d.Search(set, &HashPredicate{Digests: digests})
}
