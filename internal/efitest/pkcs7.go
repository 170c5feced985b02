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

package efitest

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/binary"
	"time"

	efi "github.com/canonical/go-efilib"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
	. "gopkg.in/check.v1"
)

var (
	oidContentType          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidMessageDigest        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	oidSigningTime          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
	oidSignedData           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidSHA1                 = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidSHA256               = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidRSAEncryption        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidSpcIndirectData      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	oidSpcPeImageDataObject = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}
)

func generatePKCS7SignedData(c *C, signer *x509.Certificate, contentType asn1.ObjectIdentifier, content, authAttrs, sig []byte, digestAlg, digestEncAlg asn1.ObjectIdentifier, certs ...*x509.Certificate) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ContentInfo ::= SEQUENCE
		b.AddASN1ObjectIdentifier(oidSignedData)                                                        // contentType ContentType
		b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) { // content [0] EXPLICIT DEFINED BY contentType OPTIONAL
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SignedData ::= SEQUENCE
				b.AddASN1Int64(1)                                            // version Version
				b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) { // digestAlgorithms DigestAlgorithmIdentifiers
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier ::= SEQUENCE
						b.AddASN1ObjectIdentifier(digestAlg) // algorithm OBJECT IDENTIFIER
						b.AddASN1NULL()                      // parameters ANY DEFINED BY algorithm OPTIONAL
					})
				})
				b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // contentInfo ContentInfo
					b.AddASN1ObjectIdentifier(contentType) // contentType ContentType
					if len(content) > 0 {
						b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) { // content [0] EXPLICIT DEFINED BY contentType OPTIONAL
							// Add the content
							b.AddBytes(content)
						})
					}
				})
				b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) { // certificates [0] IMPLICIT ExtendedCertificatesAndCertificates OPTIONAL
					b.AddBytes(signer.Raw)
					for _, cert := range certs {
						b.AddBytes(cert.Raw)
					}
				})
				b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) { // signerInfos SignerInfos
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SignerInfo ::= SEQUENCE
						b.AddASN1Int64(1)                                                 // version Version
						b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // issuerAndSerialNumber IssuerAndSerialNumber
							b.AddBytes(signer.RawIssuer)
							b.AddASN1BigInt(signer.SerialNumber)
						})
						b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // digestAlgorithm DigestAlgorithmIdentifier
							b.AddASN1ObjectIdentifier(digestAlg) // algorithm OBJECT IDENTIFIER
							b.AddASN1NULL()                      // parameters ANY DEFINED BY algorithm OPTIONAL
						})
						if len(authAttrs) > 0 {
							b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) { // authenticatedAttributes [0] IMPLICIT Attributes OPTIONAL
								// Add the authenticated attributes
								attrsOuter := cryptobyte.String(authAttrs)
								var attrsInner cryptobyte.String
								attrsOuter.ReadASN1(&attrsInner, cryptobyte_asn1.SET)
								b.AddBytes(attrsInner)
							})
						}
						b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // digestEncryptionAlgorithm DigestEncryptionAlgorithmIdentifier
							b.AddASN1ObjectIdentifier(digestEncAlg) // algorithm OBJECT IDENTIFIER
							b.AddASN1NULL()                         // parameters ANY DEFINED BY algorithm OPTIONAL
						})
						b.AddASN1OctetString(sig) // encryptedDigest EncryptedDigest
					})
				})
			})
		})
	})

	pk7, err := b.Bytes()
	c.Assert(err, IsNil)

	return pk7
}

// NewSpcIndirectDataContent returns a DER encoded SpcIndirectDataContent structure
// for a PE image with the supplied SHA-256 digest.
func NewSpcIndirectDataContent(c *C, imageDigest []byte) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SpcIndirectDataContent ::= SEQUENCE
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // data SpcAttributeTypeAndOptionalValue
			b.AddASN1ObjectIdentifier(oidSpcPeImageDataObject)                // type OBJECT IDENTIFIER
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // value SpcPeImageData
				b.AddASN1BitString([]byte{0})                                                                   // flags SpcPeImageFlags DEFAULT { includeResources }
				b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) { // file SpcLink [0] EXPLICIT
					b.AddASN1(cryptobyte_asn1.Tag(2).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) { // file [2] EXPLICIT SpcString
						b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific(), func(b *cryptobyte.Builder) { // unicode [0] IMPLICIT BMPSTRING
							str := new(bytes.Buffer)
							binary.Write(str, binary.LittleEndian, efi.ConvertUTF8ToUCS2("<<<Obsolete>>>"))
							b.AddBytes(str.Bytes())
						})
					})
				})
			})
		})
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // messageDigest DigestInfo
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // digestAlgorithm AlgorithmIdentifier
				b.AddASN1ObjectIdentifier(oidSHA256) // algorithm OBJECT IDENTIFIER
			})
			b.AddASN1OctetString(imageDigest) // digest OCTETSTRING
		})
	})

	data, err := b.Bytes()
	c.Assert(err, IsNil)
	return data
}

type attribute struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue `asn1:"set"`
}

func newAttribute(c *C, attrType asn1.ObjectIdentifier, value interface{}) attribute {
	encoded, err := asn1.Marshal(value)
	c.Assert(err, IsNil)
	return attribute{
		Type:  attrType,
		Value: asn1.RawValue{Tag: asn1.TagSet, IsCompound: true, Bytes: encoded}}
}

// SignedDataParams describes a PKCS#7 signature to create with NewSignedData.
type SignedDataParams struct {
	Signer *x509.Certificate
	Key    *rsa.PrivateKey
	Certs  []*x509.Certificate // Additional certificates to embed, such as intermediates

	// Content is the DER encoded content to sign. If ContentType is
	// not set, SpcIndirectDataContent is assumed.
	Content     []byte
	ContentType asn1.ObjectIdentifier

	SigningTime  *time.Time // Add a signing time attribute
	Detached     bool       // Don't embed the content
	DigestSHA1   bool       // Use SHA-1 rather than SHA-256
	NoAttributes bool       // Sign the content directly, without authenticated attributes
}

// NewSignedData returns a DER encoded PKCS#7 SignedData structure with a single
// signer. Like Authenticode, the message digest attribute covers the content
// without its tag and length.
func NewSignedData(c *C, params *SignedDataParams) []byte {
	contentType := params.ContentType
	if contentType == nil {
		contentType = oidSpcIndirectData
	}

	s := cryptobyte.String(params.Content)
	var value cryptobyte.String
	var tag cryptobyte_asn1.Tag
	c.Assert(s.ReadAnyASN1(&value, &tag), Equals, true)

	digestAlg := oidSHA256
	hashAlg := crypto.SHA256
	if params.DigestSHA1 {
		digestAlg = oidSHA1
		hashAlg = crypto.SHA1
	}

	h := hashAlg.New()
	h.Write(value)

	content := params.Content
	if params.Detached {
		content = nil
	}

	if params.NoAttributes {
		sig, err := rsa.SignPKCS1v15(rand.Reader, params.Key, hashAlg, h.Sum(nil))
		c.Assert(err, IsNil)
		return generatePKCS7SignedData(c, params.Signer, contentType, content, nil, sig, digestAlg, oidRSAEncryption, params.Certs...)
	}

	attrs := []attribute{
		newAttribute(c, oidContentType, contentType),
		newAttribute(c, oidMessageDigest, h.Sum(nil)),
	}
	if params.SigningTime != nil {
		attrs = append(attrs, newAttribute(c, oidSigningTime, params.SigningTime.UTC()))
	}

	encoded, err := asn1.Marshal(struct {
		A []attribute `asn1:"set"`
	}{A: attrs})
	c.Assert(err, IsNil)
	var outer asn1.RawValue
	_, err = asn1.Unmarshal(encoded, &outer)
	c.Assert(err, IsNil)
	authAttrs := outer.Bytes

	h = hashAlg.New()
	h.Write(authAttrs)
	sig, err := rsa.SignPKCS1v15(rand.Reader, params.Key, hashAlg, h.Sum(nil))
	c.Assert(err, IsNil)

	return generatePKCS7SignedData(c, params.Signer, contentType, content, authAttrs, sig, digestAlg, oidRSAEncryption, params.Certs...)
}
