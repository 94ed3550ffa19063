// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"fmt"
	"regexp"
	"strings"
)

// SplitDn splits a distinguished name into its relative names.
//
// Slashes inside square brackets belong to the RN ("ip-[10.0.0.0/24]").
//
// Example:
//
//	ucs.SplitDn("org-root/ls-web01") // ["org-root", "ls-web01"]
func SplitDn(dn string) []string {
	if dn == "" {
		return nil
	}
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '/':
			if depth == 0 {
				parts = append(parts, dn[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, dn[start:])
}

// RnOf returns the last relative name of dn
func RnOf(dn string) string {
	parts := SplitDn(dn)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// ParentDn returns dn without its last relative name ("" for a top-level dn)
func ParentDn(dn string) string {
	parts := SplitDn(dn)
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], "/")
}

// JoinDn appends rn to parent
func JoinDn(parent, rn string) string {
	if parent == "" {
		return rn
	}
	return parent + "/" + rn
}

var rnPlaceholder = regexp.MustCompile(`\[([A-Za-z0-9_]+)\]`)

// FormatRn renders an RN pattern such as "ls-[name]" from naming property
// values keyed by wire attribute name.
func FormatRn(pattern string, values map[string]string) (string, error) {
	var missing []string
	rn := rnPlaceholder.ReplaceAllStringFunc(pattern, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := values[key]
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("rn %q: missing naming properties %v", pattern, missing)
	}
	return rn, nil
}

// ParseRn matches rn against an RN pattern and returns the naming property
// values keyed by wire attribute name. ok is false when rn does not fit the
// pattern. A pattern without placeholders returns an empty map.
//
// Example:
//
//	vals, ok := ucs.ParseRn("ls-[name]", "ls-web01") // {"name": "web01"}, true
func ParseRn(pattern, rn string) (map[string]string, bool) {
	names := rnPlaceholder.FindAllStringSubmatch(pattern, -1)
	if len(names) == 0 {
		return map[string]string{}, pattern == rn
	}

	var expr strings.Builder
	expr.WriteString("^")
	last := 0
	for _, loc := range rnPlaceholder.FindAllStringIndex(pattern, -1) {
		expr.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		expr.WriteString("(.+?)")
		last = loc[1]
	}
	expr.WriteString(regexp.QuoteMeta(pattern[last:]))
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, false
	}
	m := re.FindStringSubmatch(rn)
	if m == nil {
		return nil, false
	}
	out := make(map[string]string, len(names))
	for i, n := range names {
		out[n[1]] = m[i+1]
	}
	return out, true
}
