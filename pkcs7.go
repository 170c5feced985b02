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
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"time"

	"go.mozilla.org/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}

	// The bounds of the validity window before it is restricted.
	unixEpoch = time.Unix(0, 0).UTC()
	endOfTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

// validityWindow is the range of times at which a signature could have been
// created, based on the validity periods of the certificates and the signing
// time contained in it.
type validityWindow struct {
	notBefore time.Time
	notAfter  time.Time
}

func newValidityWindow() *validityWindow {
	return &validityWindow{notBefore: unixEpoch, notAfter: endOfTime}
}

func (w *validityWindow) restrict(notBefore, notAfter time.Time) {
	if notBefore.After(w.notBefore) {
		w.notBefore = notBefore
	}
	if notAfter.Before(w.notAfter) {
		w.notAfter = notAfter
	}
}

// inverted indicates that the window is empty.
func (w *validityWindow) inverted() bool {
	return w.notAfter.Before(w.notBefore)
}

// midpoint returns the time halfway between the bounds of the window, to a
// precision of one second. This is still computed for an inverted window.
func (w *validityWindow) midpoint() time.Time {
	lo := w.notBefore.Unix()
	hi := w.notAfter.Unix()
	return time.Unix(lo+(hi-lo)/2, 0).UTC()
}

// signatureValidityWindow computes the validity window for the supplied
// signature. The window is the intersection of the validity periods of all of
// the certificates in the signature, further restricted to the signing time if
// the signature has one.
func signatureValidityWindow(p7 *pkcs7.PKCS7) *validityWindow {
	w := newValidityWindow()
	for _, cert := range p7.Certificates {
		w.restrict(cert.NotBefore, cert.NotAfter)
	}

	var signingTime time.Time
	if err := p7.UnmarshalSignedAttribute(pkcs7.OIDAttributeSigningTime, &signingTime); err == nil {
		w.restrict(signingTime, signingTime)
	}

	return w
}

// contentValue strips the tag and length from the supplied DER encoded value.
// The digest in an Authenticode signature only covers the contents of the
// SpcIndirectDataContent structure.
func contentValue(encoded []byte) ([]byte, error) {
	s := cryptobyte.String(encoded)
	var value cryptobyte.String
	var tag cryptobyte_asn1.Tag
	if !s.ReadAnyASN1(&value, &tag) || !s.Empty() {
		return nil, errors.New("malformed content")
	}
	return value, nil
}

// verifySignatureWithCertificate verifies the supplied PKCS#7 signature, using
// the supplied DER encoded certificate as the only trust anchor. If content is
// nil, the encapsulated content of the signature is used. The signature may be
// BER encoded.
func verifySignatureWithCertificate(sig, content, cert []byte) error {
	p7, err := pkcs7.Parse(sig)
	if err != nil {
		return &verificationError{step: "cannot decode signature", err: err}
	}

	window := signatureValidityWindow(p7)
	if window.inverted() {
		logger.Warn("signature has impossible time constraint",
			"not-before", window.notBefore, "not-after", window.notAfter)
	}
	at := window.midpoint()

	// Decode again so that nothing from the window computation leaks into
	// verification.
	p7, err = pkcs7.Parse(sig)
	if err != nil {
		return &verificationError{step: "cannot decode signature", err: err}
	}

	// The decoder strips the tag and length from the encapsulated content.
	value := p7.Content
	switch {
	case content != nil:
		value, err = contentValue(content)
		if err != nil {
			return &verificationError{step: "cannot obtain signed content", err: err}
		}
	case len(value) == 0:
		return &verificationError{step: "cannot obtain signed content", err: errors.New("no encapsulated content")}
	}

	signer := p7.GetOnlySigner()
	switch {
	case signer == nil:
		return &verificationError{step: "cannot obtain signer certificate"}
	case !p7.Signers[0].DigestAlgorithm.Algorithm.Equal(oidSHA256):
		return &verificationError{step: "signature has unexpected digest algorithm"}
	}

	// Without authenticated attributes, the signature covers the content
	// directly and there is no message digest to compare.
	if len(p7.Signers[0].AuthenticatedAttributes) > 0 {
		h := crypto.SHA256.New()
		h.Write(value)
		digest := h.Sum(nil)

		var messageDigest []byte
		if err := p7.UnmarshalSignedAttribute(pkcs7.OIDAttributeMessageDigest, &messageDigest); err != nil {
			return &verificationError{step: "cannot obtain message digest", err: err}
		}
		if !bytes.Equal(digest, messageDigest) {
			return &verificationError{step: "message digest mismatch"}
		}
	}

	root, err := x509.ParseCertificate(cert)
	if err != nil {
		return &verificationError{step: "cannot decode candidate certificate", err: err}
	}
	roots := x509.NewCertPool()
	roots.AddCert(root)

	intermediates := x509.NewCertPool()
	for _, c := range p7.Certificates {
		intermediates.AddCert(c)
	}

	p7.Content = value
	if err := p7.Verify(); err != nil {
		return &verificationError{step: "invalid signature", err: err}
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning}}
	if _, err := signer.Verify(opts); err != nil {
		return &verificationError{step: "cannot verify signer certificate", err: err}
	}

	return nil
}
