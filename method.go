// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ExternalMethod is the request/response envelope of one RPC.
//
// Scalar parameters travel as attributes of the root element, element
// parameters (inConfig, outConfigs, inFilter, ...) as child elements whose tag
// is the parameter name. On a response exactly one of {outputs, error fields}
// is meaningful; Err reports which.
type ExternalMethod struct {
	meta *MethodMeta
	name string

	// Cookie is the session cookie carried by every authenticated request
	Cookie string

	// Response is true for server replies
	Response bool

	// ErrorCode is the server error code, 0 on success
	ErrorCode int

	// ErrorDescr is the server error description
	ErrorDescr string

	// InvocationResult is the server invocation result
	InvocationResult string

	params   map[string]string
	elements map[string]Element

	// loadErr records a reply attribute that could not be decoded
	loadErr error
}

// NewExternalMethod creates an empty envelope for the named method
func NewExternalMethod(reg *Registry, name string) *ExternalMethod {
	m := &ExternalMethod{
		name:     name,
		params:   make(map[string]string),
		elements: make(map[string]Element),
	}
	if reg != nil {
		if meta, ok := reg.Method(name); ok {
			m.meta = meta
			m.name = meta.Name
		}
	}
	return m
}

// Name returns the wire method name
func (m *ExternalMethod) Name() string { return m.name }

// Tag returns the wire tag, which is the method name
func (m *ExternalMethod) Tag() string { return m.name }

// Meta returns the method metadata, nil for methods unknown to the registry
func (m *ExternalMethod) Meta() *MethodMeta { return m.meta }

func (m *ExternalMethod) paramName(name string) string {
	if p, ok := m.meta.Param(name); ok {
		return p.Name
	}
	return name
}

// SetParam sets a scalar parameter
func (m *ExternalMethod) SetParam(name, value string) *ExternalMethod {
	m.params[m.paramName(name)] = value
	return m
}

// Param returns a scalar parameter, "" when unset
func (m *ExternalMethod) Param(name string) string {
	return m.params[m.paramName(name)]
}

// SetElement sets an element parameter
func (m *ExternalMethod) SetElement(name string, el Element) *ExternalMethod {
	m.elements[m.paramName(name)] = el
	return m
}

// Element returns an element parameter, nil when unset
func (m *ExternalMethod) Element(name string) Element {
	return m.elements[m.paramName(name)]
}

// Err returns a *ProtocolError when the envelope carries a non-zero error code
func (m *ExternalMethod) Err() error {
	if m.ErrorCode == 0 {
		return nil
	}
	return &ProtocolError{
		Operation:        m.name,
		Code:             m.ErrorCode,
		Description:      m.ErrorDescr,
		InvocationResult: m.InvocationResult,
	}
}

// orderedKeys returns the keys of set in metadata order followed by unknown
// keys sorted.
func (m *ExternalMethod) orderedKeys(set func(string) bool, all []string) []string {
	var keys []string
	seen := make(map[string]bool)
	if m.meta != nil {
		for _, p := range m.meta.Params {
			if set(p.Name) {
				keys = append(keys, p.Name)
				seen[p.Name] = true
			}
		}
	}
	var rest []string
	for _, k := range all {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// WriteXML serializes the envelope
func (m *ExternalMethod) WriteXML(enc *xml.Encoder, opt WriteOption, tag string) error {
	if tag == "" {
		tag = m.Tag()
	}
	var a attrs
	a.add("cookie", m.Cookie)
	if m.Response {
		a.add("response", "yes")
	}

	paramKeys := make([]string, 0, len(m.params))
	for k := range m.params {
		paramKeys = append(paramKeys, k)
	}
	for _, k := range m.orderedKeys(func(k string) bool { _, ok := m.params[k]; return ok }, paramKeys) {
		a.add(k, m.params[k])
	}
	if m.ErrorCode != 0 {
		a.add("errorCode", strconv.Itoa(m.ErrorCode))
		a.add("errorDescr", m.ErrorDescr)
		if m.InvocationResult != "" {
			a.add("invocationResult", m.InvocationResult)
		}
	}

	if err := writeStart(enc, tag, a); err != nil {
		return err
	}
	elemKeys := make([]string, 0, len(m.elements))
	for k := range m.elements {
		elemKeys = append(elemKeys, k)
	}
	for _, k := range m.orderedKeys(func(k string) bool { _, ok := m.elements[k]; return ok }, elemKeys) {
		if el := m.elements[k]; el != nil {
			if err := el.WriteXML(enc, opt, k); err != nil {
				return err
			}
		}
	}
	return writeEnd(enc, tag)
}

func (m *ExternalMethod) loadXML(n *Node, ld *loader) {
	for _, attr := range n.Attrs {
		switch attr.Name.Local {
		case "cookie":
			m.Cookie = attr.Value
		case "response":
			m.Response = strings.EqualFold(attr.Value, "yes")
		case "errorCode":
			code, err := strconv.Atoi(strings.TrimSpace(attr.Value))
			if err != nil {
				m.loadErr = fmt.Errorf("errorCode %q: %w", attr.Value, err)
			}
			m.ErrorCode = code
		case "errorDescr":
			m.ErrorDescr = attr.Value
		case "invocationResult":
			m.InvocationResult = attr.Value
		default:
			m.params[m.paramName(attr.Name.Local)] = attr.Value
		}
	}
	for _, cn := range n.Children {
		if p, ok := m.meta.Param(cn.Name); ok && p.IsElement() {
			el := ld.factory.NewParam(p.Type)
			el.loadXML(cn, ld)
			m.elements[p.Name] = el
			continue
		}
		m.elements[cn.Name] = ld.load(cn)
	}
}
