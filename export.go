// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters of the export key derivation
const (
	exportSaltSize = 16
	exportScryptN  = 1 << 15
	exportScryptR  = 8
	exportScryptP  = 1
	exportKeySize  = 32
	exportNonce    = 24
)

// ErrExportKey is returned when an exported password cannot be decrypted
var ErrExportKey = errors.New("export: wrong key or corrupted password")

type exportFile struct {
	XMLName xml.Name      `xml:"ucshandles"`
	Entries []exportEntry `xml:"ucs"`
}

type exportEntry struct {
	Name     string `xml:"name,attr"`
	Username string `xml:"username,attr"`
	NoSSL    string `xml:"nossl,attr,omitempty"`
	Port     string `xml:"port,attr,omitempty"`
	Password string `xml:"password,attr"`
}

// Export writes every session of the manager that has credentials to w.
// Passwords are encrypted with a key derived from key.
//
// The document looks like:
//
//	<ucshandles>
//	  <ucs name="10.0.0.10" username="admin" password="..."/>
//	  <ucs name="10.0.0.11" username="admin" nossl="true" port="8080" password="..."/>
//	</ucshandles>
func (m *SessionManager) Export(w io.Writer, key []byte) error {
	if len(key) == 0 {
		return newValidationError("Export", "key cannot be empty")
	}
	var doc exportFile
	for _, c := range m.Sessions() {
		c.mu.RLock()
		user, pass := c.username, c.password
		c.mu.RUnlock()
		if user == "" || pass == "" {
			continue
		}
		enc, err := encryptPassword(key, pass)
		if err != nil {
			return err
		}
		e := exportEntry{Name: c.Host, Username: user, Password: enc}
		if !c.UseTLS {
			e.NoSSL = "true"
		}
		if c.Port != c.defaultPort() {
			e.Port = strconv.Itoa(c.Port)
		}
		doc.Entries = append(doc.Entries, e)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return enc.Flush()
}

// Import reads an export document and logs in to every complete entry,
// registering each session under its host name. Entries missing name,
// username or password are skipped. Failed logins are joined into the
// returned error; the sessions that did log in are returned either way.
//
// Example:
//
//	f, _ := os.Open("sessions.xml")
//	defer f.Close()
//	clients, err := mgr.Import(ctx, f, []byte(os.Getenv("UCS_EXPORT_KEY")),
//	    ucs.VerifyCertificate(false))
func (m *SessionManager) Import(ctx context.Context, r io.Reader, key []byte, opts ...func(*Client)) ([]*Client, error) {
	var doc exportFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	var (
		clients []*Client
		errs    []error
	)
	for _, e := range doc.Entries {
		if e.Name == "" || e.Username == "" || e.Password == "" {
			m.logger.Warn(ctx, "UCS import entry skipped", "name", e.Name, "reason", "incomplete entry")
			continue
		}
		pass, err := decryptPassword(key, e.Password)
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", e.Name, err))
			continue
		}
		entryOpts := []func(*Client){
			Username(e.Username),
			Password(pass),
			TLS(e.NoSSL != "true"),
		}
		if e.Port != "" {
			port, err := strconv.Atoi(e.Port)
			if err != nil {
				m.logger.Warn(ctx, "UCS import entry skipped", "name", e.Name, "reason", "invalid port")
				continue
			}
			entryOpts = append(entryOpts, Port(port))
		}
		entryOpts = append(entryOpts, opts...)
		entryOpts = append(entryOpts, WithSessionManager(m, e.Name))

		c, err := NewClient(e.Name, entryOpts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", e.Name, err))
			continue
		}
		if err := c.Login(ctx); err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", e.Name, err))
			continue
		}
		clients = append(clients, c)
	}
	return clients, errors.Join(errs...)
}

func deriveExportKey(key, salt []byte) (*[exportKeySize]byte, error) {
	raw, err := scrypt.Key(key, salt, exportScryptN, exportScryptR, exportScryptP, exportKeySize)
	if err != nil {
		return nil, err
	}
	var k [exportKeySize]byte
	copy(k[:], raw)
	return &k, nil
}

// encryptPassword returns base64(salt | nonce | secretbox)
func encryptPassword(key []byte, password string) (string, error) {
	buf := make([]byte, exportSaltSize+exportNonce)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	k, err := deriveExportKey(key, buf[:exportSaltSize])
	if err != nil {
		return "", err
	}
	var nonce [exportNonce]byte
	copy(nonce[:], buf[exportSaltSize:])
	sealed := secretbox.Seal(buf, []byte(password), &nonce, k)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func decryptPassword(key []byte, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < exportSaltSize+exportNonce+secretbox.Overhead {
		return "", ErrExportKey
	}
	k, err := deriveExportKey(key, raw[:exportSaltSize])
	if err != nil {
		return "", err
	}
	var nonce [exportNonce]byte
	copy(nonce[:], raw[exportSaltSize:exportSaltSize+exportNonce])
	plain, ok := secretbox.Open(nil, raw[exportSaltSize+exportNonce:], &nonce, k)
	if !ok {
		return "", ErrExportKey
	}
	return string(plain), nil
}
