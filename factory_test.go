// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryResolve(t *testing.T) {
	f := NewFactory(DefaultRegistry())

	tests := []struct {
		tag  string
		want string
	}{
		{"lsServer", "*ucs.ManagedObject"},
		{"configResolveDn", "*ucs.ExternalMethod"},
		{"configSet", "*ucs.ElementSet"},
		{"configMap", "*ucs.ConfigMap"},
		{"pair", "*ucs.Pair"},
		{"dn", "*ucs.ValueElement"},
		{"method", "*ucs.Method"},
		{"and", "*ucs.Filter"},
		{"somethingNew", "*ucs.ManagedObject"},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			el := f.Resolve(tt.tag)
			require.NotNil(t, el)
			assert.Equal(t, tt.want, typeName(el))
		})
	}
}

func typeName(el Element) string {
	switch el.(type) {
	case *ManagedObject:
		return "*ucs.ManagedObject"
	case *ExternalMethod:
		return "*ucs.ExternalMethod"
	case *ElementSet:
		return "*ucs.ElementSet"
	case *ConfigMap:
		return "*ucs.ConfigMap"
	case *Pair:
		return "*ucs.Pair"
	case *ValueElement:
		return "*ucs.ValueElement"
	case *Method:
		return "*ucs.Method"
	case *Filter:
		return "*ucs.Filter"
	}
	return "unknown"
}

func TestUnmarshalManagedObjects(t *testing.T) {
	f := NewFactory(DefaultRegistry())

	tests := []struct {
		name string
		doc  string
		dns  []string
	}{
		{
			name: "single object",
			doc:  `<lsServer dn="org-root/ls-a" name="a"/>`,
			dns:  []string{"org-root/ls-a"},
		},
		{
			name: "wrapper element",
			doc:  `<objects><lsServer dn="org-root/ls-a"/><fabricVlan dn="fabric/lan/net-web"/></objects>`,
			dns:  []string{"org-root/ls-a", "fabric/lan/net-web"},
		},
		{
			name: "config set",
			doc:  `<configSet><lsServer dn="org-root/ls-a"/><lsServer dn="org-root/ls-b"/></configSet>`,
			dns:  []string{"org-root/ls-a", "org-root/ls-b"},
		},
		{
			name: "config map",
			doc:  `<configMap><pair key="org-root/ls-a"><lsServer dn="org-root/ls-a"/></pair></configMap>`,
			dns:  []string{"org-root/ls-a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mos, err := f.UnmarshalManagedObjects(strings.NewReader(tt.doc))
			require.NoError(t, err)
			var got []string
			for _, mo := range mos {
				got = append(got, mo.Dn())
			}
			assert.Equal(t, tt.dns, got)
		})
	}

	_, err := f.UnmarshalManagedObjects(strings.NewReader("<broken"))
	assert.Error(t, err)
}

func TestExternalMethodRoundTrip(t *testing.T) {
	reg := DefaultRegistry()
	a := NewManagedObject(reg, "fabricVlan").SetDn("fabric/lan/net-a").Set("Id", "10")
	b := NewManagedObject(reg, "fabricVlan").SetDn("fabric/lan/net-b").Set("Id", "11")
	cm := NewConfigMap()
	cm.Put(a.Dn(), a)
	cm.Put(b.Dn(), b)

	m := NewExternalMethod(reg, "CONFIGCONFMOS").
		SetParam("InHierarchical", "false").
		SetElement("inConfigs", cm)
	m.Cookie = "c1"
	assert.Equal(t, MethodConfigConfMos, m.Name())
	assert.Equal(t, "false", m.Param("inHierarchical"))

	doc, err := MarshalElement(m, WriteDirty)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc, `<configConfMos cookie="c1" inHierarchical="false"><inConfigs><pair key="fabric/lan/net-a">`))

	el, err := NewFactory(reg).Unmarshal(strings.NewReader(doc))
	require.NoError(t, err)
	got, ok := el.(*ExternalMethod)
	require.True(t, ok)
	assert.Equal(t, "c1", got.Cookie)
	gotMap, ok := got.Element("inConfigs").(*ConfigMap)
	require.True(t, ok)
	require.Equal(t, 2, gotMap.Len())
	mo, ok := gotMap.Get("fabric/lan/net-b")
	require.True(t, ok)
	assert.Equal(t, "11", mo.Get("Id"))
}

func TestExternalMethodErr(t *testing.T) {
	reg := DefaultRegistry()
	el, err := NewFactory(reg).Unmarshal(strings.NewReader(
		`<configConfMo cookie="c" response="yes" errorCode="103" errorDescr="can't create" invocationResult="unidentified-fail"/>`))
	require.NoError(t, err)
	m := el.(*ExternalMethod)
	assert.True(t, m.Response)

	perr, ok := IsProtocolError(m.Err())
	require.True(t, ok)
	assert.Equal(t, 103, perr.Code)
	assert.Equal(t, "can't create", perr.Description)
	assert.Equal(t, "ucs: configConfMo failed: [ErrorCode]: 103 [ErrorDescription]: can't create", perr.Error())
	assert.Contains(t, perr.DetailedError(), "unidentified-fail")

	ok2 := NewExternalMethod(reg, MethodConfigConfMo)
	assert.NoError(t, ok2.Err())
}

func TestElementSets(t *testing.T) {
	dns := NewDnSet("a", "b")
	assert.Equal(t, TagDnSet, dns.Tag())
	assert.Equal(t, []string{"a", "b"}, dns.Values())

	ids := NewClassIDSet("lsServer")
	doc, err := MarshalElement(ids, WriteAll)
	require.NoError(t, err)
	assert.Equal(t, `<classIdSet><classId value="lsServer"></classId></classIdSet>`, doc)

	assert.Equal(t, []string{"7"}, NewIDSet("7").Values())

	reg := DefaultRegistry()
	set := NewMethodSet(NewExternalMethod(reg, MethodConfigMoChangeEvent))
	require.Len(t, set.Methods(), 1)
	assert.Empty(t, set.ManagedObjects())
}

func TestConfigMapPutReplaces(t *testing.T) {
	reg := DefaultRegistry()
	cm := NewConfigMap()
	first := NewManagedObject(reg, "lsServer").SetDn("org-root/ls-a")
	second := NewManagedObject(reg, "lsServer").SetDn("org-root/ls-a").Set("Descr", "x")
	other := NewManagedObject(reg, "lsServer").SetDn("org-root/ls-b")

	cm.Put(first.Dn(), first)
	cm.Put(other.Dn(), other)
	cm.Put(second.Dn(), second)

	require.Equal(t, 2, cm.Len())
	assert.Equal(t, []*ManagedObject{second, other}, cm.ManagedObjects(), "replacement keeps insertion position")
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()

	meta, ok := reg.Class("LSSERVER")
	require.True(t, ok)
	assert.Equal(t, "lsServer", meta.Name)
	assert.Equal(t, "lsServer", meta.XMLName)
	assert.Equal(t, IOInputOutput, meta.IO)

	p, ok := meta.Prop("policyowner")
	require.True(t, ok)
	assert.Equal(t, "policyOwner", p.XMLAttribute)
	assert.Equal(t, "2.1(1a)", p.MinVersion.String())

	p, ok = meta.Prop("status")
	require.True(t, ok, "common properties are always known")
	assert.Equal(t, PropStatus, p.Name)

	var none *ClassMeta
	_, ok = none.Prop("Dn")
	assert.True(t, ok)

	blade, _ := reg.Class("computeBlade")
	assert.True(t, blade.IsOutputOnly())
	assert.True(t, blade.IsReadOnly())
	assert.Equal(t, []string{"SlotId"}, propNames(blade.NamingProps()))
	assert.False(t, meta.IsReadOnly())

	assert.Contains(t, reg.Classes(), "fabricVlan")
	_, ok = reg.Method("configresolvedn")
	assert.True(t, ok)

	assert.Error(t, reg.RegisterClass(ClassMeta{}))
	assert.Error(t, reg.RegisterClass(ClassMeta{Name: "dup", Props: []PropMeta{{Name: "A"}, {Name: "a"}}}))
	assert.Error(t, reg.RegisterMethod(MethodMeta{}))
}

func propNames(ps []PropMeta) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestRegistryLoadJSON(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "class and method",
			doc: `{
			  "classes": [
			    {"name": "fabricVsan", "rn": "net-[name]", "access": ["admin", "ext-san-config"],
			     "minVersion": "1.0(1e)",
			     "props": [
			       {"name": "Name", "xml": "name", "access": "Naming"},
			       {"name": "Id", "xml": "id"},
			       {"name": "ZoningState", "xml": "zoningState", "minVersion": "2.1(1a)"},
			       {"name": "OperState", "xml": "operState", "access": "ReadOnly"}
			     ]}
			  ],
			  "methods": [
			    {"name": "lsClone", "params": [
			      {"name": "dn", "type": "string", "input": true},
			      {"name": "outConfig", "type": "ConfigConfig"}
			    ]}
			  ]
			}`,
		},
		{name: "invalid json", doc: `{"classes": [`, wantErr: "invalid JSON"},
		{name: "bad class version", doc: `{"classes": [{"name": "x", "minVersion": "one"}]}`, wantErr: "class x"},
		{name: "bad prop version", doc: `{"classes": [{"name": "x", "props": [{"name": "A", "minVersion": "?"}]}]}`, wantErr: "property A"},
		{name: "nameless class", doc: `{"classes": [{"rn": "x"}]}`, wantErr: "class name cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := DefaultRegistry()
			err := reg.LoadJSON([]byte(tt.doc))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			meta, ok := reg.Class("fabricVsan")
			require.True(t, ok)
			assert.Equal(t, "1.0(1e)", meta.MinVersion.String())
			assert.Equal(t, []string{"admin", "ext-san-config"}, meta.Access)
			p, ok := meta.Prop("zoningstate")
			require.True(t, ok)
			assert.Equal(t, AccessReadWrite, p.Access)
			assert.Equal(t, "2.1(1a)", p.MinVersion.String())

			m, ok := reg.Method("lsClone")
			require.True(t, ok)
			param, ok := m.Param("OUTCONFIG")
			require.True(t, ok)
			assert.True(t, param.IsElement())
			dn, _ := m.Param("dn")
			assert.False(t, dn.IsElement())

			vsan := NewManagedObject(reg, "fabricVsan").Set("Name", "fc-a")
			require.NoError(t, vsan.ComposeDn("fabric/san"))
			assert.Equal(t, "fabric/san/net-fc-a", vsan.Dn())
		})
	}
}

func TestWriteOption(t *testing.T) {
	tests := []struct {
		opt   WriteOption
		want  string
		valid bool
	}{
		{WriteAll, "all", true},
		{WriteAllConfig, "all-config", true},
		{WriteDirty, "dirty", true},
		{WriteOption(7), "unknown(7)", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opt.String())
			if tt.valid {
				assert.NoError(t, ValidateWriteOption(tt.opt))
			} else {
				assert.Error(t, ValidateWriteOption(tt.opt))
			}
		})
	}
}

func TestParseNode(t *testing.T) {
	n, err := ParseNodeString(`<?xml version="1.0"?><!-- c --><a x="1">text<b y="2"/><c/></a>`)
	require.NoError(t, err)
	assert.Equal(t, "a", n.Name)
	v, ok := n.Attr("x")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	_, ok = n.Attr("y")
	assert.False(t, ok)
	require.Len(t, n.Children, 2)
	assert.Equal(t, "b", n.Children[0].Name)

	_, err = ParseNodeString("")
	assert.Error(t, err)
}
