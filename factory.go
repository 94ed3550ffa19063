// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"io"
	"strings"
)

// Factory resolves XML element tags to fresh elements.
//
// Resolution order: registry class, registry method, support type table,
// then a generic managed object keyed by the tag, so every well-formed
// element yields some object. The tables are built once; Resolve performs
// map lookups only.
type Factory struct {
	reg     *Registry
	support map[string]func() Element
}

// NewFactory builds a factory over reg
func NewFactory(reg *Registry) *Factory {
	if reg == nil {
		reg = NewRegistry()
	}
	f := &Factory{reg: reg, support: make(map[string]func() Element)}

	add := func(tag string, ctor func() Element) {
		f.support[strings.ToLower(tag)] = ctor
	}
	add(TagMethod, func() Element { return &Method{} })
	add(TagMethodSet, func() Element { return &ElementSet{tag: TagMethodSet} })
	add(TagConfigConfig, func() Element { return &ConfigConfig{} })
	add(TagConfigMap, func() Element { return NewConfigMap() })
	add(TagConfigSet, func() Element { return &ElementSet{tag: TagConfigSet} })
	add(TagPair, func() Element { return &Pair{} })
	add(TagDn, func() Element { return &ValueElement{tag: TagDn} })
	add(TagDnSet, func() Element { return &ElementSet{tag: TagDnSet} })
	add(TagClassID, func() Element { return &ValueElement{tag: TagClassID} })
	add(TagClassIDSet, func() Element { return &ElementSet{tag: TagClassIDSet} })
	add(TagID, func() Element { return &ValueElement{tag: TagID} })
	add(TagIDSet, func() Element { return &ElementSet{tag: TagIDSet} })
	for _, op := range filterOps {
		op := op
		add(string(op), func() Element { return &Filter{Op: op} })
	}
	return f
}

// Registry returns the registry the factory resolves against
func (f *Factory) Registry() *Registry { return f.reg }

// Resolve returns a new, empty element for tag
func (f *Factory) Resolve(tag string) Element {
	if _, ok := f.reg.Class(tag); ok {
		return NewManagedObject(f.reg, tag)
	}
	if _, ok := f.reg.Method(tag); ok {
		return NewExternalMethod(f.reg, tag)
	}
	if ctor, ok := f.support[strings.ToLower(tag)]; ok {
		return ctor()
	}
	return NewManagedObject(f.reg, tag)
}

// NewParam returns a new, empty element for an element parameter type
func (f *Factory) NewParam(t ParamType) Element {
	switch t {
	case ParamConfigConfig:
		return &ConfigConfig{}
	case ParamConfigMap:
		return NewConfigMap()
	case ParamConfigSet:
		return &ElementSet{tag: TagConfigSet}
	case ParamDnSet:
		return &ElementSet{tag: TagDnSet}
	case ParamClassIDSet:
		return &ElementSet{tag: TagClassIDSet}
	case ParamIDSet:
		return &ElementSet{tag: TagIDSet}
	case ParamMethodSet:
		return &ElementSet{tag: TagMethodSet}
	case ParamFilter:
		return &Filter{Op: OpFilter}
	}
	return &ElementSet{tag: string(t)}
}

// Load materializes a parsed element tree. Loaded objects are bound to c
// when c is non-nil.
func (f *Factory) Load(n *Node, c *Client) Element {
	ld := &loader{factory: f, client: c}
	return ld.load(n)
}

// Unmarshal parses an XML document and materializes its root element.
//
// Example:
//
//	f := ucs.NewFactory(ucs.DefaultRegistry())
//	el, err := f.Unmarshal(strings.NewReader(`<lsServer dn="org-root/ls-web01" descr="frontend"/>`))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sp := el.(*ucs.ManagedObject)
func (f *Factory) Unmarshal(r io.Reader) (Element, error) {
	n, err := ParseNode(r)
	if err != nil {
		return nil, err
	}
	return f.Load(n, nil), nil
}

// UnmarshalManagedObjects parses an XML document holding either one managed
// object or a container of them (configSet, configMap, or any wrapper element
// whose children are managed objects) and returns the objects.
func (f *Factory) UnmarshalManagedObjects(r io.Reader) ([]*ManagedObject, error) {
	el, err := f.Unmarshal(r)
	if err != nil {
		return nil, err
	}
	return flattenManagedObjects(el), nil
}

// flattenManagedObjects collects the top-level managed objects held by el
func flattenManagedObjects(el Element) []*ManagedObject {
	switch v := el.(type) {
	case *ManagedObject:
		if v.meta == nil && v.Dn() == "" && len(v.children) > 0 {
			// unknown wrapper element such as <objects>
			return v.Children()
		}
		return []*ManagedObject{v}
	case *ConfigConfig:
		if v.MO != nil {
			return []*ManagedObject{v.MO}
		}
	case *ConfigMap:
		return v.ManagedObjects()
	case *Pair:
		if v.MO != nil {
			return []*ManagedObject{v.MO}
		}
	case *ElementSet:
		var out []*ManagedObject
		for _, it := range v.Items {
			out = append(out, flattenManagedObjects(it)...)
		}
		return out
	}
	return nil
}
