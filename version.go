// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"fmt"
	"regexp"
	"strconv"
)

// versionPattern accepts the release strings reported by the management
// controller: "2.2(1b)", "1.4(3.12)", "3.0(2)". Whitespace is not allowed.
var versionPattern = regexp.MustCompile(`^([1-9][0-9]{0,2})\.([0-9]{1,2})\(([0-9]{1,3})(?:\.([0-9]{1,5})|([a-zA-Z]{1,3}))?\)$`)

// Version is a parsed management controller release
// (major, minor, maintenance release, patch).
type Version struct {
	Major int
	Minor int
	MR    int

	// Patch is the patch component: digits ("12" in "1.4(3.12)"), letters
	// ("b" in "2.2(1b)") or empty ("3.0(2)").
	Patch string

	raw string
}

// ParseVersion parses a version string
//
// Example:
//
//	v, err := ucs.ParseVersion("2.2(1b)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(v.Major, v.Minor, v.MR, v.Patch) // 2 2 1 b
func ParseVersion(s string) (*Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid version %q", s)
	}
	v := &Version{raw: s}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	v.MR, _ = strconv.Atoi(m[3])
	if m[4] != "" {
		v.Patch = m[4]
	} else {
		v.Patch = m[5]
	}
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error.
// It is intended for static schema tables.
func MustParseVersion(s string) *Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version in wire form
func (v *Version) String() string {
	if v == nil {
		return ""
	}
	if v.raw != "" {
		return v.raw
	}
	if v.Patch == "" {
		return fmt.Sprintf("%d.%d(%d)", v.Major, v.Minor, v.MR)
	}
	if isDigits(v.Patch) {
		return fmt.Sprintf("%d.%d(%d.%s)", v.Major, v.Minor, v.MR, v.Patch)
	}
	return fmt.Sprintf("%d.%d(%d%s)", v.Major, v.Minor, v.MR, v.Patch)
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to
// or after other. Major is compared first, then minor, then maintenance
// release, then patch. A nil version sorts before every parsed version.
func (v *Version) Compare(other *Version) int {
	switch {
	case v == nil && other == nil:
		return 0
	case v == nil:
		return -1
	case other == nil:
		return 1
	}
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.MR, other.MR); c != 0 {
		return c
	}
	return comparePatch(v.Patch, other.Patch)
}

// Less reports whether v sorts before other
func (v *Version) Less(other *Version) bool {
	return v.Compare(other) < 0
}

// AtLeast reports whether v is equal to or newer than other
func (v *Version) AtLeast(other *Version) bool {
	return v.Compare(other) >= 0
}

// comparePatch orders: empty < numeric (numerically) < letters (lexically).
func comparePatch(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	an, bn := isDigits(a), isDigits(b)
	switch {
	case an && bn:
		ai, _ := strconv.Atoi(a)
		bi, _ := strconv.Atoi(b)
		if c := compareInt(ai, bi); c != 0 {
			return c
		}
		// "01" vs "1": fall back to lexical so the order stays total
		return compareString(a, b)
	case an:
		return -1
	case bn:
		return 1
	}
	if len(a) != len(b) {
		// "z" < "aa"
		return compareInt(len(a), len(b))
	}
	return compareString(a, b)
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
