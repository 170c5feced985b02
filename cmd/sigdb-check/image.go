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
	"bytes"
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	efi "github.com/canonical/go-efilib"
	"github.com/snapcore/sigdb"
	"golang.org/x/xerrors"
)

const (
	certTableIndex = 4 // Index of the Certificate Table entry in the Data Directory of a PE image optional header

	winCertificateHeaderSize = 8
)

// peImage contains the properties of a PE image that are checked against a
// signature database.
type peImage struct {
	digests    sigdb.Digests
	signatures [][]byte // DER encoded PKCS#7 signatures that cover this image
	unbound    int      // number of signatures that cover a different image
}

// imageSignature is an Authenticode signature from the security directory of a
// PE image.
type imageSignature struct {
	authenticode *efi.WinCertificateAuthenticode
	data         []byte // DER encoded PKCS#7 signature
}

// readSignatures returns the Authenticode signatures from the security directory
// of the supplied PE image.
func readSignatures(pefile *pe.File, r io.ReaderAt) ([]*imageSignature, error) {
	var dd []pe.DataDirectory
	switch oh := pefile.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dd = oh.DataDirectory[0:oh.NumberOfRvaAndSizes]
	case *pe.OptionalHeader64:
		dd = oh.DataDirectory[0:oh.NumberOfRvaAndSizes]
	default:
		return nil, errors.New("cannot obtain security directory entry: no optional header")
	}

	if len(dd) <= certTableIndex {
		// This image doesn't include a certificate table entry, so has no signatures.
		return nil, nil
	}

	// The security directory entry points to one or more WIN_CERTIFICATE structures.
	certReader := io.NewSectionReader(
		r,
		int64(dd[certTableIndex].VirtualAddress),
		int64(dd[certTableIndex].Size))

	var sigs []*imageSignature

	for i := 0; ; i++ {
		// Entries are 8-byte aligned.
		off, _ := certReader.Seek(0, io.SeekCurrent)
		alignSize := (8 - (off & 7)) % 8
		certReader.Seek(alignSize, io.SeekCurrent)

		var hdr [winCertificateHeaderSize]byte
		_, err := io.ReadFull(certReader, hdr[:])
		switch {
		case err == io.EOF:
			return sigs, nil
		case err != nil:
			return nil, fmt.Errorf("cannot read WIN_CERTIFICATE header from security directory entry %d: %w", i, err)
		}

		length := binary.LittleEndian.Uint32(hdr[:])
		if length < winCertificateHeaderSize {
			return nil, fmt.Errorf("invalid WIN_CERTIFICATE length %d in security directory entry %d", length, i)
		}
		data := make([]byte, length)
		copy(data, hdr[:])
		if _, err := io.ReadFull(certReader, data[winCertificateHeaderSize:]); err != nil {
			return nil, fmt.Errorf("cannot read WIN_CERTIFICATE from security directory entry %d: %w", i, err)
		}

		c, err := efi.ReadWinCertificate(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("cannot decode WIN_CERTIFICATE from security directory entry %d: %w", i, err)
		}

		sig, ok := c.(*efi.WinCertificateAuthenticode)
		if !ok {
			return nil, fmt.Errorf("unexpected WIN_CERTIFICATE type from security directory entry %d: not an Authenticode signature", i)
		}
		if sig.DigestAlgorithm() != crypto.SHA256 {
			return nil, fmt.Errorf("signature from security directory entry %d has unexpected digest algorithm", i)
		}

		sigs = append(sigs, &imageSignature{authenticode: sig, data: data[winCertificateHeaderSize:]})
	}
}

// readImage computes the Authenticode digests of the PE image at the specified
// path, and extracts its signatures. Signatures for which the signed digest does
// not match the SHA-256 Authenticode digest of the image are omitted, so that a
// modified image cannot be authorized by the signature of the original.
func readImage(path string) (*peImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pefile, err := pe.NewFile(f)
	if err != nil {
		return nil, xerrors.Errorf("cannot decode PE image: %w", err)
	}

	sigs, err := readSignatures(pefile, f)
	if err != nil {
		return nil, xerrors.Errorf("cannot obtain signatures: %w", err)
	}

	img := new(peImage)
	img.digests.SHA256, err = efi.ComputePeImageDigest(crypto.SHA256, f, fi.Size())
	if err != nil {
		return nil, xerrors.Errorf("cannot compute SHA-256 digest: %w", err)
	}
	img.digests.SHA1, err = efi.ComputePeImageDigest(crypto.SHA1, f, fi.Size())
	if err != nil {
		return nil, xerrors.Errorf("cannot compute SHA-1 digest: %w", err)
	}

	for _, sig := range sigs {
		if !bytes.Equal(sig.authenticode.Digest(), img.digests.SHA256) {
			img.unbound++
			continue
		}
		img.signatures = append(img.signatures, sig.data)
	}

	return img, nil
}
