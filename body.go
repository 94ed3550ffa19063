// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"fmt"
	"strings"

	"github.com/tidwall/sjson"
)

// Body is an immutable JSON document builder over sjson paths. It backs the
// JSON renderings of managed objects, responses and diffs.
//
// The first failing operation is remembered and turns every later one into
// a no-op, so calls can be chained and checked once:
//
//	doc, err := ucs.Body{}.
//	    Set("host", client.Host).
//	    Set("version", client.Version().String()).
//	    SetRaw("servers", ucs.ManagedObjectsJSON(servers)).
//	    String()
type Body struct {
	str string
	err error
}

func (b Body) apply(op, path string, fn func() (string, error)) Body {
	if b.err != nil {
		return b
	}
	out, err := fn()
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("%s(%q): %w", op, path, err)}
	}
	return Body{str: out}
}

// Set stores value at path. Dots separate path components; use escapeKey
// for keys that contain them.
func (b Body) Set(path string, value any) Body {
	return b.apply("Set", path, func() (string, error) { return sjson.Set(b.str, path, value) })
}

// SetRaw stores already encoded JSON at path. A path ending in "-1" appends
// to an array.
func (b Body) SetRaw(path, raw string) Body {
	return b.apply("SetRaw", path, func() (string, error) { return sjson.SetRaw(b.str, path, raw) })
}

// Delete removes path
func (b Body) Delete(path string) Body {
	return b.apply("Delete", path, func() (string, error) { return sjson.Delete(b.str, path) })
}

// String returns the document and the first error
func (b Body) String() (string, error) {
	return b.str, b.err
}

// Err returns the first error, if any
func (b Body) Err() error {
	return b.err
}

// Res returns the document, or "" after an error
func (b Body) Res() string {
	if b.err != nil {
		return ""
	}
	return b.str
}

// Bytes returns the document as bytes, or the first error
func (b Body) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	return []byte(b.str), nil
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

// escapeKey makes an object key usable as a single sjson path component
func escapeKey(key string) string {
	return pathEscaper.Replace(key)
}
