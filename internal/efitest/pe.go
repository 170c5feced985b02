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
	"debug/pe"
	"encoding/binary"

	. "gopkg.in/check.v1"
)

const (
	peHeaderOffset  = 0x40
	peFileAlignment = 0x200
)

// MakePEImage returns a minimal PE32+ image with no sections. The supplied
// DER encoded PKCS#7 signatures are added to its security directory.
func MakePEImage(c *C, sigs ...[]byte) []byte {
	var certTable []byte
	for _, sig := range sigs {
		cert := MakeWinCertificateAuthenticode(sig)
		for len(cert)%8 != 0 {
			cert = append(cert, 0)
		}
		certTable = append(certTable, cert...)
	}

	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		SectionAlignment:    0x1000,
		FileAlignment:       peFileAlignment,
		SizeOfImage:         0x1000,
		SizeOfHeaders:       peFileAlignment,
		Subsystem:           pe.IMAGE_SUBSYSTEM_EFI_APPLICATION,
		NumberOfRvaAndSizes: 16}
	if len(certTable) > 0 {
		oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY] = pe.DataDirectory{
			VirtualAddress: peFileAlignment,
			Size:           uint32(len(certTable))}
	}

	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		SizeOfOptionalHeader: uint16(binary.Size(oh)),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_LARGE_ADDRESS_AWARE}

	buf := new(bytes.Buffer)
	dosHeader := make([]byte, peHeaderOffset)
	copy(dosHeader, "MZ")
	binary.LittleEndian.PutUint32(dosHeader[0x3c:], peHeaderOffset)
	buf.Write(dosHeader)
	buf.WriteString("PE\x00\x00")
	c.Assert(binary.Write(buf, binary.LittleEndian, &fh), IsNil)
	c.Assert(binary.Write(buf, binary.LittleEndian, &oh), IsNil)
	c.Assert(buf.Len() <= peFileAlignment, Equals, true)
	buf.Write(make([]byte, peFileAlignment-buf.Len()))
	buf.Write(certTable)

	return buf.Bytes()
}
