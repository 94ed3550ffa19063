// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"weak"
)

// Element is anything the class factory can produce from an XML element:
// managed objects, external methods, filters and the support containers.
type Element interface {
	// Tag returns the canonical wire tag of the element
	Tag() string

	// WriteXML serializes the element. tag overrides the wire tag when non-empty.
	WriteXML(enc *xml.Encoder, opt WriteOption, tag string) error

	loadXML(n *Node, ld *loader)
}

// loader carries what LoadXML needs while recursing: the factory resolving
// child tags and the session the loaded objects are bound to.
type loader struct {
	factory *Factory
	client  *Client
}

func (ld *loader) load(n *Node) Element {
	el := ld.factory.Resolve(n.Name)
	el.loadXML(n, ld)
	return el
}

// ManagedObject is a node of the remote configuration tree: a typed property
// bag validated against the Schema Registry, an extension bag for attributes
// the registry does not know, a dirty set and an ordered list of children.
//
// ManagedObject is not safe for concurrent mutation.
type ManagedObject struct {
	classID  string
	meta     *ClassMeta
	props    map[string]string
	ext      map[string]string
	dirty    map[string]struct{}
	children []*ManagedObject
	session  weak.Pointer[Client]
}

// NewManagedObject creates an empty object of the given class.
//
// Classes unknown to reg are accepted; all their properties then live in the
// extension bag.
//
// Example:
//
//	sp := ucs.NewManagedObject(ucs.DefaultRegistry(), "lsServer").
//	    Set("Name", "web01").
//	    Set("Descr", "frontend")
//	if err := sp.ComposeDn("org-root"); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(sp.Dn()) // org-root/ls-web01
func NewManagedObject(reg *Registry, classID string) *ManagedObject {
	m := &ManagedObject{
		classID: classID,
		props:   make(map[string]string),
		ext:     make(map[string]string),
		dirty:   make(map[string]struct{}),
	}
	if reg != nil {
		if meta, ok := reg.Class(classID); ok {
			m.meta = meta
			m.classID = meta.Name
		}
	}
	return m
}

// Tag returns the wire tag of the object's class
func (m *ManagedObject) Tag() string {
	if m.meta != nil {
		return m.meta.XMLName
	}
	return m.classID
}

// ClassID returns the canonical class name
func (m *ManagedObject) ClassID() string { return m.classID }

// Meta returns the class metadata, nil for classes unknown to the registry
func (m *ManagedObject) Meta() *ClassMeta { return m.meta }

// Dn returns the distinguished name ("" for a new rn-relative object)
func (m *ManagedObject) Dn() string { return m.props[PropDn] }

// Rn returns the relative name
func (m *ManagedObject) Rn() string {
	if rn, ok := m.props[PropRn]; ok {
		return rn
	}
	return RnOf(m.props[PropDn])
}

// Status returns the Status property
func (m *ManagedObject) Status() string { return m.props[PropStatus] }

// IsDeleted reports whether the status marks the object for deletion
func (m *ManagedObject) IsDeleted() bool {
	return strings.Contains(m.props[PropStatus], StatusDeleted)
}

// resolve maps a property name to its storage key. Known properties are
// stored under their canonical name, everything else under the name given.
func (m *ManagedObject) resolve(name string) (PropMeta, bool) {
	return m.meta.Prop(name)
}

// Get returns a property value, "" when unset
func (m *ManagedObject) Get(name string) string {
	v, _ := m.Lookup(name)
	return v
}

// Lookup returns a property value and whether it is set
func (m *ManagedObject) Lookup(name string) (string, bool) {
	if p, ok := m.resolve(name); ok {
		v, ok := m.props[p.Name]
		return v, ok
	}
	if v, ok := m.ext[name]; ok {
		return v, true
	}
	for k, v := range m.ext {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Set assigns a property and marks it dirty. Setting Dn also derives Rn;
// setting Rn on an object with a dn replaces the dn's last segment.
// Names unknown to the registry are stored as extension properties.
func (m *ManagedObject) Set(name, value string) *ManagedObject {
	p, ok := m.resolve(name)
	if !ok {
		key := name
		for k := range m.ext {
			if strings.EqualFold(k, name) {
				key = k
				break
			}
		}
		m.ext[key] = value
		m.dirty[key] = struct{}{}
		return m
	}
	if p.Name == PropDn {
		return m.SetDn(value)
	}
	if dn := m.props[PropDn]; p.Name == PropRn && dn != "" && value != "" {
		return m.SetDn(JoinDn(ParentDn(dn), value))
	}
	m.props[p.Name] = value
	m.dirty[p.Name] = struct{}{}
	return m
}

// SetDn assigns the distinguished name and derives the relative name from
// its last segment.
func (m *ManagedObject) SetDn(dn string) *ManagedObject {
	m.props[PropDn] = dn
	m.dirty[PropDn] = struct{}{}
	if dn == "" {
		delete(m.props, PropRn)
		return m
	}
	m.props[PropRn] = RnOf(dn)
	return m
}

// Unset removes a property
func (m *ManagedObject) Unset(name string) *ManagedObject {
	if p, ok := m.resolve(name); ok {
		delete(m.props, p.Name)
		delete(m.dirty, p.Name)
		return m
	}
	delete(m.ext, name)
	delete(m.dirty, name)
	return m
}

// ComposeDn renders the object's RN from its naming properties using the
// class RN pattern and sets Dn to parentDn/rn.
func (m *ManagedObject) ComposeDn(parentDn string) error {
	if m.meta == nil || m.meta.Rn == "" {
		return fmt.Errorf("class %s has no rn pattern", m.classID)
	}
	values := make(map[string]string)
	for _, p := range m.meta.NamingProps() {
		values[p.XMLAttribute] = m.props[p.Name]
	}
	rn, err := FormatRn(m.meta.Rn, values)
	if err != nil {
		return err
	}
	m.SetDn(JoinDn(parentDn, rn))
	return nil
}

// Props returns a copy of all set properties, known ones under their
// canonical name and extension properties under their wire name.
func (m *ManagedObject) Props() map[string]string {
	out := make(map[string]string, len(m.props)+len(m.ext))
	for k, v := range m.props {
		out[k] = v
	}
	for k, v := range m.ext {
		out[k] = v
	}
	return out
}

// Extensions returns a copy of the properties unknown to the registry
func (m *ManagedObject) Extensions() map[string]string {
	out := make(map[string]string, len(m.ext))
	for k, v := range m.ext {
		out[k] = v
	}
	return out
}

// PropertyNames returns the names of all set properties, sorted
func (m *ManagedObject) PropertyNames() []string {
	names := make([]string, 0, len(m.props)+len(m.ext))
	for k := range m.props {
		names = append(names, k)
	}
	for k := range m.ext {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Dirty returns the names of the properties changed since the last MarkClean, sorted
func (m *ManagedObject) Dirty() []string {
	names := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsDirty reports whether the named property changed since the last MarkClean
func (m *ManagedObject) IsDirty(name string) bool {
	if p, ok := m.resolve(name); ok {
		name = p.Name
	}
	_, ok := m.dirty[name]
	return ok
}

// MarkClean clears the dirty set of the object and all its descendants
func (m *ManagedObject) MarkClean() {
	clear(m.dirty)
	for _, c := range m.children {
		c.MarkClean()
	}
}

// Children returns the owned child objects in order
func (m *ManagedObject) Children() []*ManagedObject {
	return append([]*ManagedObject(nil), m.children...)
}

// AddChild appends a child. A child holding only an rn gets its dn composed
// from the parent's dn.
func (m *ManagedObject) AddChild(child *ManagedObject) *ManagedObject {
	if child.Dn() == "" && m.Dn() != "" {
		if rn := child.props[PropRn]; rn != "" {
			child.SetDn(JoinDn(m.Dn(), rn))
		}
	}
	m.children = append(m.children, child)
	return m
}

// Session returns the client the object was loaded through, or nil when the
// object was built locally or the client has been garbage collected.
func (m *ManagedObject) Session() *Client {
	return m.session.Value()
}

func (m *ManagedObject) bind(c *Client) {
	if c != nil {
		m.session = weak.Make(c)
	}
}

// bindTree binds the object and all descendants to c
func (m *ManagedObject) bindTree(c *Client) {
	m.bind(c)
	for _, ch := range m.children {
		ch.bindTree(c)
	}
}

// Clone returns a deep copy including children, dirty state and session binding
func (m *ManagedObject) Clone() *ManagedObject {
	c := &ManagedObject{
		classID: m.classID,
		meta:    m.meta,
		props:   make(map[string]string, len(m.props)),
		ext:     make(map[string]string, len(m.ext)),
		dirty:   make(map[string]struct{}, len(m.dirty)),
		session: m.session,
	}
	for k, v := range m.props {
		c.props[k] = v
	}
	for k, v := range m.ext {
		c.ext[k] = v
	}
	for k := range m.dirty {
		c.dirty[k] = struct{}{}
	}
	for _, ch := range m.children {
		c.children = append(c.children, ch.Clone())
	}
	return c
}

// Walk visits the object and its descendants depth-first
func (m *ManagedObject) Walk(fn func(*ManagedObject)) {
	fn(m)
	for _, c := range m.children {
		c.Walk(fn)
	}
}

// WriteXML serializes the object and its children.
//
// Dn is always written when set. A new object without a dn is addressed by
// its rn, which is then written as well.
func (m *ManagedObject) WriteXML(enc *xml.Encoder, opt WriteOption, tag string) error {
	if tag == "" {
		tag = m.Tag()
	}
	var a attrs
	dn := m.props[PropDn]

	metaProps := commonProps
	if m.meta != nil {
		metaProps = m.meta.AllProps()
	}
	for _, p := range metaProps {
		v, ok := m.props[p.Name]
		if !ok || p.XMLAttribute == "" {
			continue
		}
		_, dirty := m.dirty[p.Name]
		switch {
		case p.Name == PropDn:
			if v == "" {
				continue
			}
		case p.Name == PropRn && dn == "":
			// addressing attribute of a relative object
		case opt == WriteAll:
		case opt == WriteAllConfig:
			if !p.IsConfig() {
				continue
			}
		case opt == WriteDirty:
			if !dirty {
				continue
			}
		}
		a.add(p.XMLAttribute, v)
	}

	extKeys := make([]string, 0, len(m.ext))
	for k := range m.ext {
		extKeys = append(extKeys, k)
	}
	sort.Strings(extKeys)
	for _, k := range extKeys {
		if _, dirty := m.dirty[k]; opt == WriteDirty && !dirty {
			continue
		}
		a.add(k, m.ext[k])
	}

	if err := writeStart(enc, tag, a); err != nil {
		return err
	}
	for _, c := range m.children {
		if err := c.WriteXML(enc, opt, ""); err != nil {
			return err
		}
	}
	return writeEnd(enc, tag)
}

// loadXML copies the element's attributes into the property map and loads
// the child elements through the factory.
func (m *ManagedObject) loadXML(n *Node, ld *loader) {
	m.bind(ld.client)
	for _, attr := range n.Attrs {
		name := attr.Name.Local
		if p, ok := m.resolve(name); ok && p.XMLAttribute != "" {
			m.props[p.Name] = attr.Value
			m.dirty[p.Name] = struct{}{}
			continue
		}
		m.ext[name] = attr.Value
		m.dirty[name] = struct{}{}
	}
	if dn := m.props[PropDn]; dn != "" {
		if _, ok := m.props[PropRn]; !ok {
			m.props[PropRn] = RnOf(dn)
		}
	}
	for _, cn := range n.Children {
		if child, ok := ld.load(cn).(*ManagedObject); ok {
			m.AddChild(child)
		}
	}
}

// String returns a short description of the object
func (m *ManagedObject) String() string {
	if dn := m.Dn(); dn != "" {
		return m.classID + "[" + dn + "]"
	}
	return m.classID + "[rn=" + m.Rn() + "]"
}
