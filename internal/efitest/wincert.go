// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2021 Canonical Ltd
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
	"encoding/binary"

	. "gopkg.in/check.v1"

	efi "github.com/canonical/go-efilib"
)

type winCertificateHdr struct {
	Length          uint32
	Revision        uint16
	CertificateType uint16
}

// MakeWinCertificateAuthenticode returns a WIN_CERTIFICATE structure for the
// supplied DER encoded PKCS#7 signature, as found in the security directory of a
// signed PE image.
func MakeWinCertificateAuthenticode(der []byte) []byte {
	hdr := winCertificateHdr{
		Length:          uint32(binary.Size(winCertificateHdr{}) + len(der)),
		Revision:        0x0200,
		CertificateType: 0x0002, // WIN_CERT_TYPE_PKCS_SIGNED_DATA
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, &hdr)
	buf.Write(der)
	return buf.Bytes()
}

// ReadWinCertificateAuthenticode decodes the supplied DER encoded PKCS#7 signature
// as an [efi.WinCertificateAuthenticode].
func ReadWinCertificateAuthenticode(c *C, der []byte) *efi.WinCertificateAuthenticode {
	sig, err := efi.ReadWinCertificate(bytes.NewReader(MakeWinCertificateAuthenticode(der)))
	c.Assert(err, IsNil)
	c.Assert(sig, FitsTypeOf, &efi.WinCertificateAuthenticode{})
	return sig.(*efi.WinCertificateAuthenticode)
}
