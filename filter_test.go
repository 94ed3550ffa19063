// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeCollapsing(t *testing.T) {
	a := Eq("lsServer", "name", "a")
	b := Eq("lsServer", "name", "b")

	assert.Nil(t, And())
	assert.Nil(t, Or(nil, nil))
	assert.Same(t, a, And(a))
	assert.Same(t, a, Or(nil, a, nil))

	f := And(a, nil, b)
	require.NotNil(t, f)
	assert.Equal(t, OpAnd, f.Op)
	assert.Equal(t, []*Filter{a, b}, f.Children)

	assert.Nil(t, Not(nil))
	assert.Nil(t, Wrap(nil))
	w := Wrap(a)
	assert.Equal(t, OpFilter, w.Op)
	assert.Same(t, w, Wrap(w))
}

func countMaxChildren(f *Filter) int {
	if f == nil {
		return 0
	}
	n := len(f.Children)
	for _, c := range f.Children {
		if m := countMaxChildren(c); m > n {
			n = m
		}
	}
	return n
}

func collectLeaves(f *Filter, out *[]string) {
	if f == nil {
		return
	}
	if !f.Op.IsComposite() {
		*out = append(*out, f.Value)
		return
	}
	for _, c := range f.Children {
		collectLeaves(c, out)
	}
}

func TestLimitComponents(t *testing.T) {
	tests := []struct {
		name  string
		count int
		max   int
	}{
		{"empty", 0, 25},
		{"single", 1, 25},
		{"at limit", 25, 25},
		{"one over", 26, 25},
		{"large", 700, 25},
		{"tiny max", 9, 2},
		{"max clamped", 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leaves := make([]*Filter, 0, tt.count)
			want := make([]string, 0, tt.count)
			for i := 0; i < tt.count; i++ {
				v := fmt.Sprintf("org-root/ls-sp%d", i)
				leaves = append(leaves, Eq("lsServer", "dn", v))
				want = append(want, v)
			}
			f := LimitComponents(OpOr, leaves, tt.max)
			if tt.count == 0 {
				assert.Nil(t, f)
				return
			}

			limit := tt.max
			if limit < 2 {
				limit = 2
			}
			assert.LessOrEqual(t, countMaxChildren(f), limit)

			var got []string
			collectLeaves(f, &got)
			assert.Equal(t, want, got, "leaf order must be preserved")
		})
	}
}

func TestPropertyFilter(t *testing.T) {
	reg := DefaultRegistry()

	assert.Nil(t, PropertyFilter(reg, "lsServer", nil, OpEq))
	assert.Nil(t, PropertyFilter(reg, "lsServer", map[string]string{}, OpEq))

	single := PropertyFilter(reg, "lsserver", map[string]string{"OperState": "ok"}, OpEq)
	require.NotNil(t, single)
	assert.Equal(t, OpEq, single.Op)
	assert.Equal(t, "lsServer", single.Class)
	assert.Equal(t, "operState", single.Property)

	multi := PropertyFilter(reg, "lsServer", map[string]string{"Descr": "x", "Name": "web.*"}, OpWcard)
	require.NotNil(t, multi)
	assert.Equal(t, OpAnd, multi.Op)
	require.Len(t, multi.Children, 2)
	assert.Equal(t, "descr", multi.Children[0].Property)
	assert.Equal(t, "name", multi.Children[1].Property)

	unknown := PropertyFilter(reg, "customThing", map[string]string{"fooBar": "1"}, OpEq)
	assert.Equal(t, "customThing", unknown.Class)
	assert.Equal(t, "fooBar", unknown.Property)
}

func TestFilterWriteXML(t *testing.T) {
	f := Wrap(And(
		Eq("lsServer", "name", "web"),
		Bw("fabricVlan", "id", "100", "200"),
	))
	out := f.String()
	assert.Equal(t,
		`<filter><and><eq class="lsServer" property="name" value="web"></eq>`+
			`<bw class="fabricVlan" property="id" firstValue="100" secondValue="200"></bw></and></filter>`,
		out)
}

func TestFilterRoundTrip(t *testing.T) {
	orig := Wrap(Or(
		Not(Eq("lsServer", "assocState", "associated")),
		Bw("fabricVlan", "id", "1", "4094"),
	))
	factory := NewFactory(DefaultRegistry())
	el, err := factory.Unmarshal(strings.NewReader(orig.String()))
	require.NoError(t, err)

	got, ok := el.(*Filter)
	require.True(t, ok)
	assert.Equal(t, orig, got)
}

func TestFilterMatch(t *testing.T) {
	reg := DefaultRegistry()
	vlan := NewManagedObject(reg, "fabricVlan").
		SetDn("fabric/lan/net-web").
		Set("Name", "web").
		Set("Id", "100").
		Set("Sharing", "primary,community")

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil matches all", nil, true},
		{"eq", Eq("fabricVlan", "name", "web"), true},
		{"eq other class", Eq("lsServer", "name", "web"), false},
		{"eq class case-insensitive", Eq("FABRICVLAN", "name", "web"), true},
		{"ne", Ne("fabricVlan", "name", "db"), true},
		{"gt numeric", Gt("fabricVlan", "id", "99"), true},
		{"gt numeric not lexical", Gt("fabricVlan", "id", "2"), true},
		{"lt", Lt("fabricVlan", "id", "100"), false},
		{"le", Le("fabricVlan", "id", "100"), true},
		{"ge", Ge("fabricVlan", "id", "101"), false},
		{"bw inside", Bw("fabricVlan", "id", "1", "4094"), true},
		{"bw outside", Bw("fabricVlan", "id", "200", "300"), false},
		{"wcard", Wcard("fabricVlan", "name", "^w.b$"), true},
		{"wcard invalid regexp", Wcard("fabricVlan", "name", "("), false},
		{"allbits", Allbits("fabricVlan", "sharing", "primary,community"), true},
		{"allbits missing", Allbits("fabricVlan", "sharing", "primary,isolated"), false},
		{"anybit", Anybit("fabricVlan", "sharing", "isolated,community"), true},
		{"anybit none", Anybit("fabricVlan", "sharing", "isolated"), false},
		{"not", Not(Eq("fabricVlan", "name", "web")), false},
		{"and", And(Eq("fabricVlan", "name", "web"), Eq("fabricVlan", "id", "100")), true},
		{"or", Or(Eq("fabricVlan", "name", "db"), Eq("fabricVlan", "id", "100")), true},
		{"wrapped", Wrap(Eq("fabricVlan", "name", "db")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(vlan))
		})
	}
}
