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
	efi "github.com/canonical/go-efilib"
)

// CertificatePredicate matches EFI_CERT_X509_GUID entries that contain a
// certificate that can be used as a trust anchor to verify a PKCS#7 signature,
// such as an Authenticode signature. Entries of any other type never match.
//
// The signer's certificate chain is verified at the midpoint of the window
// during which all of the certificates in the signature are valid, narrowed to
// the signing time if the signature has one, rather than at the current time.
type CertificatePredicate struct {
	// Signature is the DER encoded PKCS#7 signature.
	Signature []byte

	// Content is the DER encoded signed content. If this is nil, the content
	// encapsulated in the signature is used.
	Content []byte
}

// Matches implements [Predicate.Matches]. Failures to verify the signature are
// logged and result in no match.
func (p *CertificatePredicate) Matches(entry *SignatureEntry) bool {
	if entry.Type != efi.CertX509Guid {
		return false
	}

	if err := verifySignatureWithCertificate(p.Signature, p.Content, entry.Data); err != nil {
		logger.Debug("certificate does not verify signature", "owner", entry.Owner, "err", err)
		return false
	}
	return true
}

// CheckCertificate searches the specified chain for an X.509 certificate that
// verifies the supplied PKCS#7 signature. See CertificatePredicate for details
// of the content argument.
func (d *Database) CheckCertificate(set Set, sig, content []byte) (*Match, error) {
	return d.Search(set, &CertificatePredicate{Signature: sig, Content: content})
}
