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
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	efi "github.com/canonical/go-efilib"
	"github.com/jessevdk/go-flags"
	"github.com/snapcore/sigdb"
	"github.com/snapcore/sigdb/internal/config"
	"golang.org/x/xerrors"
)

type options struct {
	Config     string   `long:"config" description:"YAML file listing signature database sources"`
	NoSystemDB bool     `short:"n" long:"no-system-db" description:"Don't load db, dbx and the shim MOK lists from efivarfs"`
	DB         []string `short:"D" long:"db" description:"Add an EFI_SIGNATURE_LIST file to the allowed database"`
	DBX        []string `short:"X" long:"dbx" description:"Add an EFI_SIGNATURE_LIST file to the forbidden database"`
	Certs      []string `short:"c" long:"cert" description:"Add a DER encoded X.509 certificate to the allowed database"`

	Image     string `short:"i" long:"image" description:"Signed PE image to check"`
	SHA256    string `long:"sha256" description:"Hex encoded SHA-256 digest of the artifact"`
	SHA1      string `long:"sha1" description:"Hex encoded SHA-1 digest of the artifact"`
	Signature string `short:"s" long:"signature" description:"File containing a DER encoded PKCS#7 signature of the artifact"`
	Content   string `long:"content" description:"File containing the DER encoded signed content, if it is detached from the signature"`

	List    bool `short:"l" long:"list" description:"List the contents of the loaded databases"`
	Verbose bool `short:"v" long:"verbose" description:"Print debug messages"`
}

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func decodeDigest(name, s string, size int) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	d, err := hex.DecodeString(s)
	if err != nil {
		return nil, xerrors.Errorf("invalid --%s: %w", name, err)
	}
	if len(d) != size {
		return nil, fmt.Errorf("invalid --%s: unexpected length %d", name, len(d))
	}
	return d, nil
}

func makeQuery(opts *options) (*query, error) {
	q := new(query)

	if opts.Image != "" {
		if opts.SHA256 != "" || opts.SHA1 != "" || opts.Signature != "" || opts.Content != "" {
			return nil, errors.New("--image cannot be combined with --sha256, --sha1, --signature or --content")
		}
		img, err := readImage(opts.Image)
		if err != nil {
			return nil, xerrors.Errorf("cannot read image: %w", err)
		}
		if img.unbound > 0 {
			fmt.Fprintf(stderr, "sigdb-check: ignoring %d signature(s) that do not match the image digest\n", img.unbound)
		}
		q.digests = &img.digests
		q.signatures = img.signatures
		return q, nil
	}

	sha256, err := decodeDigest("sha256", opts.SHA256, 32)
	if err != nil {
		return nil, err
	}
	sha1, err := decodeDigest("sha1", opts.SHA1, 20)
	if err != nil {
		return nil, err
	}
	if sha256 != nil || sha1 != nil {
		q.digests = &sigdb.Digests{SHA256: sha256, SHA1: sha1}
	}

	if opts.Signature != "" {
		sig, err := os.ReadFile(opts.Signature)
		if err != nil {
			return nil, xerrors.Errorf("cannot read signature: %w", err)
		}
		q.signatures = append(q.signatures, sig)
	}
	if opts.Content != "" {
		q.content, err = os.ReadFile(opts.Content)
		if err != nil {
			return nil, xerrors.Errorf("cannot read content: %w", err)
		}
	}

	return q, nil
}

func makeConfig(opts *options) (*config.Config, error) {
	cfg := new(config.Config)
	if opts.Config != "" {
		var err error
		cfg, err = config.ReadFile(opts.Config)
		if err != nil {
			return nil, err
		}
	}

	cmdline := &config.Config{
		DB:    opts.DB,
		DBX:   opts.DBX,
		Certs: opts.Certs}
	if opts.NoSystemDB {
		useSystemDB := false
		cmdline.UseSystemDB = &useSystemDB
	}
	cfg.Merge(cmdline)
	return cfg, nil
}

func describeEntry(e *sigdb.SignatureEntry) string {
	switch e.Type {
	case efi.CertSHA256Guid:
		return "sha256:" + hex.EncodeToString(e.Data)
	case efi.CertSHA1Guid:
		return "sha1:" + hex.EncodeToString(e.Data)
	case efi.CertX509Guid:
		cert, err := x509.ParseCertificate(e.Data)
		if err != nil {
			return fmt.Sprintf("x509: invalid certificate (%v)", err)
		}
		return "x509:" + cert.Subject.String()
	default:
		return fmt.Sprintf("%v: %d bytes", e.Type, len(e.Data))
	}
}

func list(w io.Writer, db *sigdb.Database) error {
	for _, set := range []sigdb.Set{sigdb.Allow, sigdb.Deny} {
		for _, src := range db.Sources(set) {
			fmt.Fprintf(w, "%s %s (%s):\n", set, src.Name, src.Kind)
			entries := src.Entries()
			for {
				e, err := entries.Next()
				if err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  owner %v %s\n", e.Owner, describeEntry(e))
			}
		}
	}
	return nil
}

func run(args []string) (bool, error) {
	var opts options
	if _, err := flags.ParseArgs(&opts, args); err != nil {
		return false, err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	sigdb.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := makeConfig(&opts)
	if err != nil {
		return false, err
	}

	db := sigdb.NewDatabase()
	defer db.Close()
	if err := cfg.Load(db); err != nil {
		return false, err
	}

	if opts.List {
		return true, list(stdout, db)
	}

	q, err := makeQuery(&opts)
	if err != nil {
		return false, err
	}

	result, err := check(db, q)
	if err != nil {
		return false, err
	}

	if result.match != nil {
		fmt.Fprintf(stdout, "%s: found in %s %s (%s)\n", result.verdict, result.match.Set, result.match.Source.Name, describeEntry(result.match.Entry))
	} else {
		fmt.Fprintln(stdout, result.verdict)
	}
	return result.verdict == verdictAllowed, nil
}

func main() {
	ok, err := run(os.Args[1:])
	if err != nil {
		switch e := err.(type) {
		case *flags.Error:
			// flags already prints this
			if e.Type == flags.ErrHelp {
				os.Exit(0)
			}
		default:
			fmt.Fprintln(stderr, "sigdb-check:", err)
		}
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}
