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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	efi "github.com/canonical/go-efilib"

	. "gopkg.in/check.v1"
)

// MakeEfivarfsFile returns the contents of the efivarfs file for a variable with
// the supplied attributes and payload.
func MakeEfivarfsFile(attrs efi.VariableAttributes, payload []byte) []byte {
	data := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint32(data, uint32(attrs))
	return append(data, payload...)
}

// WriteEfivarfsFile writes the supplied variable to a file in dir, using the
// naming scheme of efivarfs, and returns its path.
func WriteEfivarfsFile(c *C, dir string, v efi.VariableDescriptor, attrs efi.VariableAttributes, payload []byte) string {
	path := filepath.Join(dir, fmt.Sprintf("%s-%s", v.Name, v.GUID))
	c.Assert(os.WriteFile(path, MakeEfivarfsFile(attrs, payload), 0644), IsNil)
	return path
}
