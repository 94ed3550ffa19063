// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// JSON renders the object and its subtree as JSON:
//
//	{"classId":"lsServer","dn":"org-root/ls-web01",
//	 "props":{"Dn":"org-root/ls-web01","Name":"web01",...},
//	 "children":[...]}
//
// Returns an empty string if rendering fails.
func (m *ManagedObject) JSON() string {
	b := Body{}.
		Set("classId", m.classID).
		Set("dn", m.Dn()).
		SetRaw("props", "{}")
	for _, name := range m.PropertyNames() {
		v, _ := m.Lookup(name)
		b = b.Set("props."+escapeKey(name), v)
	}
	if len(m.children) > 0 {
		b = b.SetRaw("children", "[]")
		for _, ch := range m.children {
			b = b.SetRaw("children.-1", ch.JSON())
		}
	}
	return b.Res()
}

// GetValue retrieves a value from the JSON rendering of the object using a
// gjson path.
//
// Example paths:
//   - "props.OperState" - a property value
//   - "children.#" - number of children
//   - "children.#(classId==\"vnicEther\")#.props.Name" - names of all vNICs
//
// Example:
//
//	sp, _ := client.ConfigResolveDn(ctx, "org-root/ls-web01", ucs.Hierarchical(true))
//	for _, name := range sp.GetValue(`children.#(classId=="vnicEther")#.props.Name`).Array() {
//	    fmt.Println(name.String())
//	}
func (m *ManagedObject) GetValue(path string) gjson.Result {
	doc := m.JSON()
	if doc == "" {
		return gjson.Result{}
	}
	return gjson.Get(doc, path)
}

// ManagedObjectsJSON renders a list of objects as a JSON array
func ManagedObjectsJSON(mos []*ManagedObject) string {
	b := Body{}.SetRaw("objects", "[]")
	for _, mo := range mos {
		b = b.SetRaw("objects.-1", mo.JSON())
	}
	doc := b.Res()
	if doc == "" {
		return "[]"
	}
	return gjson.Get(doc, "objects").Raw
}

// JSON renders the envelope: method name, scalar parameters, error fields
// and the objects carried by each element parameter.
//
// Returns an empty string if rendering fails.
func (m *ExternalMethod) JSON() string {
	b := Body{}.
		Set("method", m.name).
		Set("response", m.Response).
		SetRaw("params", "{}")
	for _, k := range m.orderedKeys(func(k string) bool { _, ok := m.params[k]; return ok }, mapKeys(m.params)) {
		if isSensitiveParam(k) {
			continue
		}
		b = b.Set("params."+escapeKey(k), m.params[k])
	}
	if m.ErrorCode != 0 {
		b = b.Set("errorCode", m.ErrorCode).
			Set("errorDescr", m.ErrorDescr).
			Set("invocationResult", m.InvocationResult)
	}
	for k, el := range m.elements {
		b = b.SetRaw("elements."+escapeKey(k), ManagedObjectsJSON(flattenManagedObjects(el)))
	}
	return b.Res()
}

// GetValue retrieves a value from the JSON rendering of the envelope
//
// Example:
//
//	resp, _ := client.Dispatch(ctx, m, ucs.WriteAll)
//	count := resp.GetValue("elements.outConfigs.#").Int()
func (m *ExternalMethod) GetValue(path string) gjson.Result {
	doc := m.JSON()
	if doc == "" {
		return gjson.Result{}
	}
	return gjson.Get(doc, path)
}

func isSensitiveParam(name string) bool {
	for _, s := range sensitiveAttributes {
		if s == name {
			return true
		}
	}
	return false
}

func mapKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Int returns a property parsed as an integer, 0 when unset or not a number
func (m *ManagedObject) Int(name string) int {
	n, err := strconv.Atoi(m.Get(name))
	if err != nil {
		return 0
	}
	return n
}
