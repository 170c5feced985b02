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
	"crypto/rsa"
	"crypto/x509"
	"strings"
	"time"

	efi "github.com/canonical/go-efilib"
	. "gopkg.in/check.v1"

	. "github.com/snapcore/sigdb"
	"github.com/snapcore/sigdb/internal/efitest"
	"github.com/snapcore/sigdb/internal/testutil"
)

type certSuite struct {
	pki *testPKI
}

var _ = Suite(&certSuite{})

func (s *certSuite) SetUpSuite(c *C) {
	s.pki = newTestPKI(c)
}

func (s *certSuite) TearDownTest(c *C) {
	SetLogger(nil)
}

func (s *certSuite) content(c *C) []byte {
	return efitest.NewSpcIndirectDataContent(c, testutil.DecodeHexString(c, "2d2ee5b5b9d0e7ff7a9fc3f0f9b5b4e32d3c7c8d3e9c4fb3a1b2c3d4e5f60718"))
}

func (s *certSuite) sign(c *C, signingTime *time.Time) []byte {
	return efitest.NewSignedData(c, &efitest.SignedDataParams{
		Signer:      s.pki.signer,
		Key:         s.pki.signerKey,
		Certs:       []*x509.Certificate{s.pki.intermediate},
		Content:     s.content(c),
		SigningTime: signingTime})
}

func (s *certSuite) newDatabase(c *C, set Set, lists ...*efi.SignatureList) *Database {
	db := NewDatabase()
	_, err := db.AddSource(set, FileSource, writeFile(c, c.MkDir(), "db.esl", efitest.MakeSignatureDatabase(c, lists...)))
	c.Assert(err, IsNil)
	return db
}

func (s *certSuite) testCheckCertificateMatch(c *C, anchor *x509.Certificate, sig []byte) {
	db := s.newDatabase(c, Allow,
		efitest.NewSignatureListNullSHA256(msOwnerGuid),
		efitest.NewSignatureListX509(c, anchor.Raw, testOwnerGuid))

	m, err := db.CheckCertificate(Allow, sig, nil)
	c.Assert(err, IsNil)
	c.Assert(m, NotNil)
	c.Check(m.Entry.Type, Equals, efi.CertX509Guid)
	c.Check(m.Entry.Owner, Equals, testOwnerGuid)
	c.Check(m.Entry.Data, DeepEquals, anchor.Raw)
}

func (s *certSuite) testCheckCertificateNoMatch(c *C, set Set, lists []*efi.SignatureList, sig, content []byte) {
	db := s.newDatabase(c, set, lists...)
	m, err := db.CheckCertificate(set, sig, content)
	c.Check(err, IsNil)
	c.Check(m, IsNil)
}

func (s *certSuite) TestCheckCertificateRootAnchor(c *C) {
	t := date(2025, time.March, 1)
	s.testCheckCertificateMatch(c, s.pki.root, s.sign(c, &t))
}

func (s *certSuite) TestCheckCertificateIntermediateAnchor(c *C) {
	t := date(2025, time.March, 1)
	s.testCheckCertificateMatch(c, s.pki.intermediate, s.sign(c, &t))
}

func (s *certSuite) TestCheckCertificateLeafAnchor(c *C) {
	t := date(2025, time.March, 1)
	s.testCheckCertificateMatch(c, s.pki.signer, s.sign(c, &t))
}

func (s *certSuite) TestCheckCertificateNoSigningTime(c *C) {
	s.testCheckCertificateMatch(c, s.pki.root, s.sign(c, nil))
}

func (s *certSuite) TestCheckCertificateDeny(c *C) {
	db := s.newDatabase(c, Deny, efitest.NewSignatureListX509(c, s.pki.intermediate.Raw, testOwnerGuid))

	sig := s.sign(c, nil)
	m, err := db.CheckCertificate(Deny, sig, nil)
	c.Assert(err, IsNil)
	c.Check(m, NotNil)

	m, err = db.CheckCertificate(Allow, sig, nil)
	c.Check(err, IsNil)
	c.Check(m, IsNil)
}

func (s *certSuite) TestCheckCertificateUnrelatedRoot(c *C) {
	s.testCheckCertificateNoMatch(c, Allow, []*efi.SignatureList{
		efitest.NewSignatureListX509(c, s.pki.otherRoot.Raw, testOwnerGuid)}, s.sign(c, nil), nil)
}

func (s *certSuite) TestCheckCertificateHashOnlyDatabase(c *C) {
	s.testCheckCertificateNoMatch(c, Allow, []*efi.SignatureList{
		efitest.NewSignatureListNullSHA256(testOwnerGuid),
		efitest.NewSignatureListDigests(c, crypto.SHA1, testOwnerGuid, make([]byte, 20))}, s.sign(c, nil), nil)
}

func (s *certSuite) TestCheckCertificateSigningTimeOutsideSignerValidity(c *C) {
	logs := captureLogs(c)

	t := date(2039, time.January, 1)
	s.testCheckCertificateNoMatch(c, Allow, []*efi.SignatureList{
		efitest.NewSignatureListX509(c, s.pki.root.Raw, testOwnerGuid)}, s.sign(c, &t), nil)
	c.Check(strings.Contains(logs.String(), "signature has impossible time constraint"), testutil.IsTrue)
	c.Check(strings.Contains(logs.String(), "certificate does not verify signature"), testutil.IsTrue)
}

func (s *certSuite) TestCheckCertificateExpiredButValidAtSigningTime(c *C) {
	rootKey := testutil.GenerateRSAKey(c)
	root := testutil.CreateCertificate(c, &testutil.CertificateParams{
		Subject:   "Old Root CA",
		NotBefore: date(2005, time.January, 1),
		NotAfter:  date(2015, time.January, 1),
		IsCA:      true}, &rootKey.PublicKey, nil, rootKey)
	signerKey := testutil.GenerateRSAKey(c)
	signer := testutil.CreateCertificate(c, &testutil.CertificateParams{
		Subject:     "Old Signer",
		NotBefore:   date(2006, time.January, 1),
		NotAfter:    date(2012, time.January, 1),
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning}}, &signerKey.PublicKey, root, rootKey)

	for _, t := range []*time.Time{nil, timePtr(date(2010, time.July, 1))} {
		sig := efitest.NewSignedData(c, &efitest.SignedDataParams{
			Signer:      signer,
			Key:         signerKey,
			Content:     s.content(c),
			SigningTime: t})
		s.testCheckCertificateMatch(c, root, sig)
	}
}

func (s *certSuite) TestCheckCertificateGarbageSignature(c *C) {
	logs := captureLogs(c)

	s.testCheckCertificateNoMatch(c, Allow, []*efi.SignatureList{
		efitest.NewSignatureListX509(c, s.pki.root.Raw, testOwnerGuid)}, []byte("not a signature"), nil)
	c.Check(strings.Contains(logs.String(), "cannot decode signature"), testutil.IsTrue)
}

func (s *certSuite) TestCheckCertificateDetached(c *C) {
	content := s.content(c)
	sig := efitest.NewSignedData(c, &efitest.SignedDataParams{
		Signer:   s.pki.signer,
		Key:      s.pki.signerKey,
		Certs:    []*x509.Certificate{s.pki.intermediate},
		Content:  content,
		Detached: true})

	db := s.newDatabase(c, Allow, efitest.NewSignatureListX509(c, s.pki.root.Raw, testOwnerGuid))

	m, err := db.CheckCertificate(Allow, sig, content)
	c.Check(err, IsNil)
	c.Check(m, NotNil)

	// There is no encapsulated content to fall back to.
	m, err = db.CheckCertificate(Allow, sig, nil)
	c.Check(err, IsNil)
	c.Check(m, IsNil)
}

func (s *certSuite) TestCheckCertificateTamperedContent(c *C) {
	content := s.content(c)
	sig := efitest.NewSignedData(c, &efitest.SignedDataParams{
		Signer:   s.pki.signer,
		Key:      s.pki.signerKey,
		Certs:    []*x509.Certificate{s.pki.intermediate},
		Content:  content,
		Detached: true})

	tampered := make([]byte, len(content))
	copy(tampered, content)
	tampered[len(tampered)-1] ^= 0xff

	s.testCheckCertificateNoMatch(c, Allow, []*efi.SignatureList{
		efitest.NewSignatureListX509(c, s.pki.root.Raw, testOwnerGuid)}, sig, tampered)
}

func (s *certSuite) TestCheckCertificateSHA1Digest(c *C) {
	sig := efitest.NewSignedData(c, &efitest.SignedDataParams{
		Signer:     s.pki.signer,
		Key:        s.pki.signerKey,
		Certs:      []*x509.Certificate{s.pki.intermediate},
		Content:    s.content(c),
		DigestSHA1: true})

	s.testCheckCertificateNoMatch(c, Allow, []*efi.SignatureList{
		efitest.NewSignatureListX509(c, s.pki.root.Raw, testOwnerGuid)}, sig, nil)
}

func (s *certSuite) TestCheckCertificateWrongKeyUsage(c *C) {
	key := testutil.GenerateRSAKey(c)
	signer := testutil.CreateCertificate(c, &testutil.CertificateParams{
		Subject:     "TLS Server",
		NotBefore:   date(2021, time.January, 1),
		NotAfter:    date(2038, time.January, 1),
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}}, &key.PublicKey, s.pki.intermediate, s.pki.intermediateKey)

	sig := efitest.NewSignedData(c, &efitest.SignedDataParams{
		Signer:  signer,
		Key:     key,
		Certs:   []*x509.Certificate{s.pki.intermediate},
		Content: s.content(c)})

	s.testCheckCertificateNoMatch(c, Allow, []*efi.SignatureList{
		efitest.NewSignatureListX509(c, s.pki.root.Raw, testOwnerGuid)}, sig, nil)
}

func (s *certSuite) TestCheckCertificateOrderInsensitive(c *C) {
	sig := s.sign(c, nil)

	lists := []*efi.SignatureList{
		efitest.NewSignatureListNullSHA256(testOwnerGuid),
		efitest.NewSignatureListX509(c, s.pki.otherRoot.Raw, msOwnerGuid),
		efitest.NewSignatureListX509(c, s.pki.root.Raw, testOwnerGuid),
	}
	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {2, 0, 1}} {
		var ordered []*efi.SignatureList
		for _, i := range order {
			ordered = append(ordered, lists[i])
		}

		db := s.newDatabase(c, Allow, ordered...)
		m, err := db.CheckCertificate(Allow, sig, nil)
		c.Assert(err, IsNil)
		c.Assert(m, NotNil, Commentf("order %v", order))
		c.Check(m.Entry.Data, DeepEquals, s.pki.root.Raw)
	}
}

func (s *certSuite) TestCheckCertificateAcrossSources(c *C) {
	sig := s.sign(c, nil)
	dir := c.MkDir()

	db := NewDatabase()
	_, err := db.AddSource(Allow, FileSource, writeFile(c, dir, "other.esl", efitest.MakeSignatureDatabase(c,
		efitest.NewSignatureListX509(c, s.pki.otherRoot.Raw, msOwnerGuid))))
	c.Assert(err, IsNil)
	src, err := db.AddSource(Allow, CertificateSource, writeFile(c, dir, "root.der", s.pki.root.Raw))
	c.Assert(err, IsNil)
	_, err = db.AddSource(Allow, FileSource, writeFile(c, dir, "hashes.esl", efitest.MakeSignatureDatabase(c,
		efitest.NewSignatureListNullSHA256(msOwnerGuid))))
	c.Assert(err, IsNil)

	m, err := db.CheckCertificate(Allow, sig, nil)
	c.Assert(err, IsNil)
	c.Assert(m, NotNil)
	c.Check(m.Source, Equals, src)
	c.Check(m.Entry.Owner, Equals, efi.GUID{})
}

func (s *certSuite) TestCertificateSourceEquivalentToFile(c *C) {
	sig := s.sign(c, nil)
	dir := c.MkDir()

	for _, t := range []struct {
		kind SourceKind
		data []byte
	}{
		{CertificateSource, s.pki.root.Raw},
		{FileSource, efitest.MakeSignatureDatabase(c, efitest.NewSignatureListX509(c, s.pki.root.Raw, efi.GUID{}))},
	} {
		db := NewDatabase()
		_, err := db.AddSource(Allow, t.kind, writeFile(c, dir, t.kind.String(), t.data))
		c.Assert(err, IsNil)

		m, err := db.CheckCertificate(Allow, sig, nil)
		c.Assert(err, IsNil)
		c.Check(m, NotNil, Commentf("kind %v", t.kind))
	}
}

func (s *certSuite) TestCertificatePredicateIgnoresOtherTypes(c *C) {
	pred := &CertificatePredicate{Signature: s.sign(c, nil)}
	c.Check(pred.Matches(&SignatureEntry{Type: efi.CertSHA256Guid, Data: s.pki.root.Raw}), Equals, false)
	c.Check(pred.Matches(&SignatureEntry{Type: efi.CertX509Guid, Data: s.pki.root.Raw}), Equals, true)
}

type verifySuite struct {
	pki *testPKI
}

var _ = Suite(&verifySuite{})

func (s *verifySuite) SetUpSuite(c *C) {
	s.pki = newTestPKI(c)
}

func (s *verifySuite) sign(c *C, key *rsa.PrivateKey, signer *x509.Certificate, content []byte) []byte {
	return efitest.NewSignedData(c, &efitest.SignedDataParams{
		Signer:  signer,
		Key:     key,
		Certs:   []*x509.Certificate{s.pki.intermediate},
		Content: content})
}

func (s *verifySuite) TestVerifyGood(c *C) {
	sig := s.sign(c, s.pki.signerKey, s.pki.signer, efitest.NewSpcIndirectDataContent(c, make([]byte, 32)))
	c.Check(VerifySignatureWithCertificate(sig, nil, s.pki.root.Raw), IsNil)
}

func (s *verifySuite) TestVerifyBadSignature(c *C) {
	c.Check(VerifySignatureWithCertificate([]byte{0x30, 0x00}, nil, s.pki.root.Raw), ErrorMatches, `cannot decode signature: .*`)
}

func (s *verifySuite) TestVerifyBadCandidate(c *C) {
	sig := s.sign(c, s.pki.signerKey, s.pki.signer, efitest.NewSpcIndirectDataContent(c, make([]byte, 32)))
	c.Check(VerifySignatureWithCertificate(sig, nil, []byte("not a certificate")), ErrorMatches, `cannot decode candidate certificate: .*`)
}

func (s *verifySuite) TestVerifyDigestMismatch(c *C) {
	sig := s.sign(c, s.pki.signerKey, s.pki.signer, efitest.NewSpcIndirectDataContent(c, make([]byte, 32)))
	other := efitest.NewSpcIndirectDataContent(c, testutil.DecodeHexString(c, "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"))
	c.Check(VerifySignatureWithCertificate(sig, other, s.pki.root.Raw), ErrorMatches, `message digest mismatch`)
}

func (s *verifySuite) TestVerifyWrongKey(c *C) {
	// The signature is made with a key that doesn't belong to the embedded
	// signer certificate.
	sig := s.sign(c, s.pki.otherKey, s.pki.signer, efitest.NewSpcIndirectDataContent(c, make([]byte, 32)))
	c.Check(VerifySignatureWithCertificate(sig, nil, s.pki.root.Raw), ErrorMatches, `invalid signature: .*`)
}

func (s *verifySuite) TestVerifyUntrusted(c *C) {
	sig := s.sign(c, s.pki.signerKey, s.pki.signer, efitest.NewSpcIndirectDataContent(c, make([]byte, 32)))
	c.Check(VerifySignatureWithCertificate(sig, nil, s.pki.otherRoot.Raw), ErrorMatches, `cannot verify signer certificate: x509: .*`)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
