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
	"errors"
	"fmt"
	"path/filepath"

	efi "github.com/canonical/go-efilib"
	"github.com/snapcore/sigdb/internal/paths"
)

var (
	shimGuid = efi.MakeGUID(0x605dab50, 0xe046, 0x4300, 0xabb6, [...]uint8{0x3d, 0xd8, 0x10, 0xdd, 0x8b, 0x23}) // SHIM_LOCK_GUID

	// Db is the identity of the authorized signature database.
	Db = efi.VariableDescriptor{Name: "db", GUID: efi.ImageSecurityDatabaseGuid}

	// Dbx is the identity of the forbidden signature database.
	Dbx = efi.VariableDescriptor{Name: "dbx", GUID: efi.ImageSecurityDatabaseGuid}

	// MokListRT is the identity of the runtime copy of shim's machine owner key list.
	MokListRT = efi.VariableDescriptor{Name: "MokListRT", GUID: shimGuid}

	// MokListXRT is the identity of the runtime copy of shim's machine owner
	// revocation list.
	MokListXRT = efi.VariableDescriptor{Name: "MokListXRT", GUID: shimGuid}
)

// EfivarfsPath returns the path of the file in efivarfs for the specified variable.
func EfivarfsPath(v efi.VariableDescriptor) string {
	return filepath.Join(paths.EfivarsDir, fmt.Sprintf("%s-%s", v.Name, v.GUID))
}

func (d *Database) addSystemSource(set Set, v efi.VariableDescriptor) error {
	path := EfivarfsPath(v)
	_, err := d.AddSource(set, VariableSource, path)
	switch {
	case errors.Is(err, ErrSourceNotFound):
		logger.Info("signature database does not exist", "set", set, "path", path)
		return nil
	case err != nil:
		return err
	}
	return nil
}

// InitializeFromSystem adds the signature databases of the current system to this
// database. The allow chain is populated with db and MokListRT, and the deny chain
// is populated with dbx and MokListXRT. If enabled is false, this does nothing.
//
// Variables that do not exist are skipped. Any other error is returned, and is a
// *SourceError that identifies the variable. A warning is logged if either chain is
// still empty after loading the corresponding variables.
func (d *Database) InitializeFromSystem(enabled bool) error {
	if !enabled {
		return nil
	}

	for _, v := range []efi.VariableDescriptor{Db, MokListRT} {
		if err := d.addSystemSource(Allow, v); err != nil {
			return err
		}
	}
	if d.IsEmpty(Allow) {
		logger.Warn("no key database available")
	}

	for _, v := range []efi.VariableDescriptor{Dbx, MokListXRT} {
		if err := d.addSystemSource(Deny, v); err != nil {
			return err
		}
	}
	if d.IsEmpty(Deny) {
		logger.Warn("no key revocation database available")
	}

	return nil
}
