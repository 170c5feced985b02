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

// Package config reads the signature database sources used by sigdb-check from a
// YAML file.
package config

import (
	"os"

	"github.com/snapcore/sigdb"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

var osReadFile = os.ReadFile

// Config describes the signature database sources to load.
type Config struct {
	// UseSystemDB indicates that the system db, dbx and shim MOK databases
	// should be loaded from efivarfs. This defaults to true.
	UseSystemDB *bool `yaml:"use-system-db,omitempty"`

	DB    []string `yaml:"db,omitempty"`    // ESL files added to the allow chain
	DBX   []string `yaml:"dbx,omitempty"`   // ESL files added to the deny chain
	Certs []string `yaml:"certs,omitempty"` // DER certificates added to the allow chain
}

// ReadFile decodes the configuration file at the specified path.
func ReadFile(path string) (*Config, error) {
	data, err := osReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("cannot read configuration: %w", err)
	}
	return Decode(data)
}

// Decode decodes the supplied YAML configuration. Unknown keys are rejected.
func Decode(data []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, xerrors.Errorf("cannot decode configuration: %w", err)
	}
	return &c, nil
}

// SystemDBEnabled indicates whether the system signature databases should be loaded.
func (c *Config) SystemDBEnabled() bool {
	return c.UseSystemDB == nil || *c.UseSystemDB
}

// Merge appends the sources from other to this configuration. A use-system-db
// setting in other takes precedence.
func (c *Config) Merge(other *Config) {
	if other.UseSystemDB != nil {
		v := *other.UseSystemDB
		c.UseSystemDB = &v
	}
	c.DB = append(c.DB, other.DB...)
	c.DBX = append(c.DBX, other.DBX...)
	c.Certs = append(c.Certs, other.Certs...)
}

// Load adds the sources described by this configuration to the supplied database.
// The system databases are loaded first, so that sources listed explicitly are
// searched before them.
func (c *Config) Load(db *sigdb.Database) error {
	if err := db.InitializeFromSystem(c.SystemDBEnabled()); err != nil {
		return err
	}

	for _, path := range c.DB {
		if _, err := db.AddSource(sigdb.Allow, sigdb.FileSource, path); err != nil {
			return err
		}
	}
	for _, path := range c.DBX {
		if _, err := db.AddSource(sigdb.Deny, sigdb.FileSource, path); err != nil {
			return err
		}
	}
	for _, path := range c.Certs {
		if _, err := db.AddSource(sigdb.Allow, sigdb.CertificateSource, path); err != nil {
			return err
		}
	}

	return nil
}
