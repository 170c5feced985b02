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

package testutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	. "gopkg.in/check.v1"
)

// ParseCertificate parses a certificate from the supplied DER encoded data.
func ParseCertificate(c *C, data []byte) *x509.Certificate {
	cert, err := x509.ParseCertificate(data)
	c.Assert(err, IsNil)
	return cert
}

// GenerateRSAKey generates a new 2048-bit RSA key.
func GenerateRSAKey(c *C) *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	c.Assert(err, IsNil)
	return key
}

// CertificateParams describes a certificate to create with CreateCertificate.
type CertificateParams struct {
	Subject     string
	NotBefore   time.Time
	NotAfter    time.Time
	IsCA        bool
	ExtKeyUsage []x509.ExtKeyUsage
}

// CreateCertificate creates a certificate for the supplied public key, signed by
// the supplied parent and key. If parent is nil, the certificate is self-signed.
func CreateCertificate(c *C, params *CertificateParams, pub crypto.PublicKey, parent *x509.Certificate, parentKey crypto.Signer) *x509.Certificate {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	c.Assert(err, IsNil)

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: params.Subject},
		NotBefore:             params.NotBefore,
		NotAfter:              params.NotAfter,
		BasicConstraintsValid: true,
		IsCA:                  params.IsCA,
		ExtKeyUsage:           params.ExtKeyUsage}
	if params.IsCA {
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	} else {
		template.KeyUsage = x509.KeyUsageDigitalSignature
	}

	if parent == nil {
		parent = template
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, parentKey)
	c.Assert(err, IsNil)
	return ParseCertificate(c, der)
}
