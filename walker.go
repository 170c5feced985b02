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
	"encoding/binary"
	"io"

	efi "github.com/canonical/go-efilib"
)

const (
	// signatureListHeaderSize is the size of the fixed part of EFI_SIGNATURE_LIST:
	// SignatureType, SignatureListSize, SignatureHeaderSize and SignatureSize.
	signatureListHeaderSize = 28

	// signatureOwnerSize is the size of EFI_SIGNATURE_DATA.SignatureOwner.
	signatureOwnerSize = 16
)

// SignatureEntry corresponds to a single EFI_SIGNATURE_DATA entry in a signature
// database, along with the type of the EFI_SIGNATURE_LIST that contains it.
type SignatureEntry struct {
	Type  efi.GUID // SignatureType of the containing list
	Owner efi.GUID // SignatureOwner
	Data  []byte   // SignatureData. This aliases the buffer of the source.
}

type signatureListHeader struct {
	signatureType efi.GUID
	listSize      uint32
	headerSize    uint32
	signatureSize uint32
}

func decodeSignatureListHeader(data []byte) (hdr signatureListHeader) {
	copy(hdr.signatureType[:], data[0:16])
	hdr.listSize = binary.LittleEndian.Uint32(data[16:20])
	hdr.headerSize = binary.LittleEndian.Uint32(data[20:24])
	hdr.signatureSize = binary.LittleEndian.Uint32(data[24:28])
	return hdr
}

// SignatureListWalker iterates over the entries of a sequence of EFI_SIGNATURE_LIST
// structures, in the order in which they appear. The walker never retains more than
// the current list header, and can be restarted with Reset.
//
// A trailing list that is truncated, or trailing data that is too short to contain a
// list header, terminates the walk without an error. A list with an inconsistent
// header results in an error that matches ErrMalformedSource.
type SignatureListWalker struct {
	data []byte

	off   int // offset of the current list
	hdr   *signatureListHeader
	n     int // number of entries in the current list
	index int // index of the next entry in the current list
	err   error
}

// NewSignatureListWalker returns a new walker for the supplied signature database.
func NewSignatureListWalker(data []byte) *SignatureListWalker {
	return &SignatureListWalker{data: data}
}

// Reset restarts the walk from the first list.
func (w *SignatureListWalker) Reset() {
	w.off = 0
	w.hdr = nil
	w.n = 0
	w.index = 0
	w.err = nil
}

// Offset returns the number of bytes of the database consumed by the lists that
// have been fully walked so far.
func (w *SignatureListWalker) Offset() int {
	return w.off
}

func (w *SignatureListWalker) malformed(msg string) error {
	return &MalformedSignatureListError{Offset: w.off, msg: msg}
}

func (w *SignatureListWalker) readListHeader() error {
	remaining := uint64(len(w.data) - w.off)
	if remaining < signatureListHeaderSize {
		// Not enough space for another list, so treat this as padding.
		return io.EOF
	}

	hdr := decodeSignatureListHeader(w.data[w.off:])
	switch {
	case uint64(hdr.listSize) > remaining:
		// Truncated trailing list.
		return io.EOF
	case hdr.listSize < signatureListHeaderSize:
		return w.malformed("SignatureListSize is smaller than the list header")
	case hdr.signatureSize == 0:
		return w.malformed("SignatureSize is zero")
	case hdr.signatureSize < signatureOwnerSize:
		return w.malformed("SignatureSize is too small for the signature owner")
	case hdr.headerSize >= hdr.listSize:
		return w.malformed("SignatureHeaderSize exceeds SignatureListSize")
	case uint64(signatureListHeaderSize)+uint64(hdr.headerSize) > uint64(hdr.listSize):
		return w.malformed("SignatureHeaderSize overflows the list")
	}

	w.hdr = &hdr
	w.n = int((uint64(hdr.listSize) - signatureListHeaderSize - uint64(hdr.headerSize)) / uint64(hdr.signatureSize))
	w.index = 0
	return nil
}

// Next returns the next entry. It returns io.EOF once all entries have been returned.
func (w *SignatureListWalker) Next() (*SignatureEntry, error) {
	for w.err == nil {
		if w.hdr == nil {
			w.err = w.readListHeader()
			continue
		}

		if w.index < w.n {
			start := w.off + signatureListHeaderSize + int(w.hdr.headerSize) + w.index*int(w.hdr.signatureSize)
			end := start + int(w.hdr.signatureSize)
			w.index++

			entry := &SignatureEntry{
				Type: w.hdr.signatureType,
				Data: w.data[start+signatureOwnerSize : end : end]}
			copy(entry.Owner[:], w.data[start:start+signatureOwnerSize])
			return entry, nil
		}

		// Skip to the next list, ignoring any padding at the end of this one.
		w.off += int(w.hdr.listSize)
		w.hdr = nil
	}

	return nil, w.err
}

// checkSignatureDatabase walks every entry of the supplied signature database in
// order to detect malformed lists before the database is used.
func checkSignatureDatabase(data []byte) (entries int, err error) {
	w := NewSignatureListWalker(data)
	for {
		_, err := w.Next()
		switch {
		case err == io.EOF:
			return entries, nil
		case err != nil:
			return 0, err
		}
		entries++
	}
}
