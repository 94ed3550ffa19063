// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyTableLookup(t *testing.T) {
	table := NewPolicyTable(
		SyncPolicy{Class: "fabricVlan", MaxVersion: MustParseVersion("2.0(1m)"), Ignore: true, Reason: "old"},
		SyncPolicy{Class: "lsServer", MinVersion: MustParseVersion("2.1(1a)"), Exclude: []string{"Uuid"}},
		SyncPolicy{Class: "*", Status: "modified"},
	)
	assert.Equal(t, 3, table.Len())

	tests := []struct {
		name      string
		class     string
		version   *Version
		wantFound bool
		wantClass string
	}{
		{"max bound inclusive", "fabricVlan", MustParseVersion("2.0(1m)"), true, "fabricVlan"},
		{"above max falls through", "fabricVlan", MustParseVersion("2.2(1b)"), true, "*"},
		{"case-insensitive", "LSSERVER", MustParseVersion("2.2(1b)"), true, "lsServer"},
		{"below min falls through", "lsServer", MustParseVersion("2.0(1m)"), true, "*"},
		{"wildcard", "orgOrg", MustParseVersion("2.2(1b)"), true, "*"},
		{"unknown version skips bounded", "lsServer", nil, true, "*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := table.Lookup(tt.class, tt.version)
			assert.Equal(t, tt.wantFound, ok)
			assert.Equal(t, tt.wantClass, p.Class)
		})
	}

	var none *PolicyTable
	_, ok := none.Lookup("lsServer", nil)
	assert.False(t, ok)

	p := SyncPolicy{Exclude: []string{"Uuid"}}
	assert.True(t, p.excludes("uuid"))
	assert.False(t, p.excludes("Descr"))
}

func TestLoadPolicyJSON(t *testing.T) {
	table, err := LoadPolicyJSON([]byte(`{
		"policies": [
			{"class": "lsServer", "exclude": ["Uuid", "UsrLbl"], "status": "created,modified"},
			{"class": "fabricVlan", "maxVersion": "2.0(1m)", "ignore": true, "reason": "too old"}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	p, ok := table.Lookup("lsServer", nil)
	require.True(t, ok)
	assert.Equal(t, []string{"Uuid", "UsrLbl"}, p.Exclude)
	assert.Equal(t, StatusCreatedModified, p.Status)

	p, ok = table.Lookup("fabricVlan", MustParseVersion("1.4(1a)"))
	require.True(t, ok)
	assert.True(t, p.Ignore)
	assert.Equal(t, "too old", p.Reason)
	assert.Equal(t, "2.0(1m)", p.MaxVersion.String())

	arr, err := LoadPolicyJSON([]byte(`[{"class": "*", "ignore": true}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, arr.Len())

	for name, doc := range map[string]string{
		"invalid json":  `{"policies": [`,
		"missing class": `[{"ignore": true}]`,
		"bad version":   `[{"class": "lsServer", "minVersion": "nope"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadPolicyJSON([]byte(doc))
			assert.Error(t, err)
		})
	}
}
