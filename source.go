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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	efi "github.com/canonical/go-efilib"
	"golang.org/x/xerrors"
)

var (
	osOpen   = os.Open
	mmapFile = mapFile
)

// variableAttributesSize is the size of the attributes field that prefixes the
// contents of a variable read from efivarfs.
const variableAttributesSize = 4

// SourceKind describes how the contents of a signature database source are
// interpreted.
type SourceKind int

const (
	// FileSource corresponds to a file containing one or more EFI_SIGNATURE_LIST
	// structures.
	FileSource SourceKind = iota

	// VariableSource corresponds to an EFI variable read from efivarfs, which
	// consists of a 4-byte attributes field followed by one or more
	// EFI_SIGNATURE_LIST structures.
	VariableSource

	// CertificateSource corresponds to a single DER encoded X.509 certificate,
	// which is wrapped in a single EFI_SIGNATURE_LIST when loaded.
	CertificateSource
)

func (k SourceKind) String() string {
	switch k {
	case FileSource:
		return "file"
	case VariableSource:
		return "efivar"
	case CertificateSource:
		return "certificate"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Source corresponds to a single loaded signature database. Sources are immutable.
type Source struct {
	Kind SourceKind
	Name string // The base name of the path the source was loaded from
	Path string

	buf    []byte // the contents of the file
	mapped bool   // buf is a memory mapping
	data   []byte // the EFI_SIGNATURE_LIST structures
	attrs  efi.VariableAttributes

	next  *Source
	added bool
}

// Data returns the EFI_SIGNATURE_LIST structures of this source.
func (s *Source) Data() []byte {
	return s.data
}

// Size returns the size of the file this source was loaded from.
func (s *Source) Size() int {
	return len(s.buf)
}

// Attributes returns the attributes of a VariableSource. It returns 0 for other
// kinds of source.
func (s *Source) Attributes() efi.VariableAttributes {
	return s.attrs
}

// Entries returns a new walker for the entries of this source.
func (s *Source) Entries() *SignatureListWalker {
	return NewSignatureListWalker(s.data)
}

// Close releases the buffer associated with this source. The source must not be
// used afterwards.
func (s *Source) Close() error {
	buf := s.buf
	mapped := s.mapped
	s.buf = nil
	s.data = nil
	s.mapped = false
	if mapped {
		return unmapFile(buf)
	}
	return nil
}

func (s *Source) init() error {
	switch s.Kind {
	case FileSource:
		s.data = s.buf
	case VariableSource:
		if len(s.buf) < variableAttributesSize {
			return fmt.Errorf("%w: variable is too short to contain an attributes field", ErrMalformedSource)
		}
		s.attrs = efi.VariableAttributes(binary.LittleEndian.Uint32(s.buf))
		s.data = s.buf[variableAttributesSize:]
	case CertificateSource:
		db := efi.SignatureDatabase{
			&efi.SignatureList{
				Type:       efi.CertX509Guid,
				Signatures: []*efi.SignatureData{{Data: s.buf}}}}
		w := new(bytes.Buffer)
		if err := db.Write(w); err != nil {
			return xerrors.Errorf("cannot create signature list for certificate: %w", err)
		}
		s.data = w.Bytes()
	default:
		return fmt.Errorf("invalid source kind %v", s.Kind)
	}
	return nil
}

// readFile returns the contents of the file at the supplied path, as a read-only
// mapping if possible, else as a copy.
func readFile(path string) (data []byte, mapped bool, err error) {
	f, err := osOpen(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, false, err
	}

	// Files in pseudo-filesystems such as efivarfs may not support mapping,
	// and an empty file can't be mapped at all.
	if sz := fi.Size(); sz > 0 && int64(int(sz)) == sz {
		data, err := mmapFile(f, int(sz))
		if err == nil {
			return data, true, nil
		}
	}

	data, err = io.ReadAll(f)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func newSourceError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = ErrSourceNotFound
	case errors.Is(err, fs.ErrPermission):
		err = ErrSourceAccessDenied
	}
	return &SourceError{Path: path, err: err}
}

// LoadSource loads the signature database at the specified path. The contents are
// interpreted according to the supplied kind. The whole database is checked for
// consistency, and an error that matches ErrMalformedSource is returned if any
// EFI_SIGNATURE_LIST is invalid.
//
// If the path does not exist, an error that matches ErrSourceNotFound is returned.
// If the file cannot be opened because of insufficient permissions, an error that
// matches ErrSourceAccessDenied is returned. All returned errors are *SourceError.
func LoadSource(kind SourceKind, path string) (*Source, error) {
	buf, mapped, err := readFile(path)
	if err != nil {
		return nil, newSourceError(path, err)
	}

	src := &Source{
		Kind:   kind,
		Name:   filepath.Base(path),
		Path:   path,
		buf:    buf,
		mapped: mapped}
	if err := src.init(); err != nil {
		src.Close()
		return nil, &SourceError{Path: path, err: err}
	}

	n, err := checkSignatureDatabase(src.data)
	if err != nil {
		src.Close()
		return nil, &SourceError{Path: path, err: err}
	}

	logger.Debug("loaded signature database", "path", path, "kind", kind, "entries", n, "mapped", mapped)
	return src, nil
}
