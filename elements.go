// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import "encoding/xml"

// Wire tags of the support types
const (
	TagConfigConfig = "configConfig"
	TagConfigMap    = "configMap"
	TagConfigSet    = "configSet"
	TagPair         = "pair"
	TagDn           = "dn"
	TagDnSet        = "dnSet"
	TagClassID      = "classId"
	TagClassIDSet   = "classIdSet"
	TagID           = "id"
	TagIDSet        = "idSet"
	TagMethod       = "method"
	TagMethodSet    = "methodSet"
)

// ConfigConfig wraps a single managed object (inConfig / outConfig)
type ConfigConfig struct {
	MO *ManagedObject
}

// Tag returns the wire tag
func (c *ConfigConfig) Tag() string { return TagConfigConfig }

// WriteXML serializes the wrapper and its object
func (c *ConfigConfig) WriteXML(enc *xml.Encoder, opt WriteOption, tag string) error {
	if tag == "" {
		tag = c.Tag()
	}
	if err := writeStart(enc, tag, nil); err != nil {
		return err
	}
	if c.MO != nil {
		if err := c.MO.WriteXML(enc, opt, ""); err != nil {
			return err
		}
	}
	return writeEnd(enc, tag)
}

func (c *ConfigConfig) loadXML(n *Node, ld *loader) {
	for _, cn := range n.Children {
		if mo, ok := ld.load(cn).(*ManagedObject); ok {
			c.MO = mo
			return
		}
	}
}

// Pair associates a DN key with a managed object inside a ConfigMap
type Pair struct {
	Key string
	MO  *ManagedObject
}

// Tag returns the wire tag
func (p *Pair) Tag() string { return TagPair }

// WriteXML serializes the pair
func (p *Pair) WriteXML(enc *xml.Encoder, opt WriteOption, tag string) error {
	if tag == "" {
		tag = p.Tag()
	}
	var a attrs
	a.add("key", p.Key)
	if err := writeStart(enc, tag, a); err != nil {
		return err
	}
	if p.MO != nil {
		if err := p.MO.WriteXML(enc, opt, ""); err != nil {
			return err
		}
	}
	return writeEnd(enc, tag)
}

func (p *Pair) loadXML(n *Node, ld *loader) {
	p.Key, _ = n.Attr("key")
	for _, cn := range n.Children {
		if mo, ok := ld.load(cn).(*ManagedObject); ok {
			p.MO = mo
			return
		}
	}
}

// ConfigMap is an ordered map of DN → managed object (inConfigs / outConfigs
// of configConfMos). Putting an existing key replaces its object in place;
// Append keeps a second pair for it.
type ConfigMap struct {
	pairs []*Pair
	index map[string]int
}

// NewConfigMap creates an empty map
func NewConfigMap() *ConfigMap {
	return &ConfigMap{index: make(map[string]int)}
}

// Tag returns the wire tag
func (c *ConfigMap) Tag() string { return TagConfigMap }

// Put adds or replaces the object stored under key
func (c *ConfigMap) Put(key string, mo *ManagedObject) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if i, ok := c.index[key]; ok {
		c.pairs[i].MO = mo
		return
	}
	c.index[key] = len(c.pairs)
	c.pairs = append(c.pairs, &Pair{Key: key, MO: mo})
}

// Append adds a pair even when key is already present. The server applies
// pairs in order, so a delete followed by a create of another class at the
// same DN both reach it. Get returns the object of the last pair.
func (c *ConfigMap) Append(key string, mo *ManagedObject) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	c.index[key] = len(c.pairs)
	c.pairs = append(c.pairs, &Pair{Key: key, MO: mo})
}

// Get returns the object stored under key
func (c *ConfigMap) Get(key string) (*ManagedObject, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.pairs[i].MO, true
}

// Pairs returns the pairs in insertion order
func (c *ConfigMap) Pairs() []*Pair {
	return append([]*Pair(nil), c.pairs...)
}

// Len returns the number of pairs
func (c *ConfigMap) Len() int { return len(c.pairs) }

// ManagedObjects returns the objects in insertion order
func (c *ConfigMap) ManagedObjects() []*ManagedObject {
	out := make([]*ManagedObject, 0, len(c.pairs))
	for _, p := range c.pairs {
		if p.MO != nil {
			out = append(out, p.MO)
		}
	}
	return out
}

// WriteXML serializes the map
func (c *ConfigMap) WriteXML(enc *xml.Encoder, opt WriteOption, tag string) error {
	if tag == "" {
		tag = c.Tag()
	}
	if err := writeStart(enc, tag, nil); err != nil {
		return err
	}
	for _, p := range c.pairs {
		if err := p.WriteXML(enc, opt, ""); err != nil {
			return err
		}
	}
	return writeEnd(enc, tag)
}

func (c *ConfigMap) loadXML(n *Node, ld *loader) {
	for _, cn := range n.Children {
		switch el := ld.load(cn).(type) {
		case *Pair:
			c.Append(el.Key, el.MO)
		case *ManagedObject:
			c.Append(el.Dn(), el)
		}
	}
}

// ElementSet is an ordered set of elements: ConfigSet (managed objects),
// DnSet, ClassIdSet, IdSet (values) and MethodSet (external methods).
type ElementSet struct {
	tag   string
	Items []Element
}

// NewConfigSet creates a configSet holding the given objects
func NewConfigSet(mos ...*ManagedObject) *ElementSet {
	s := &ElementSet{tag: TagConfigSet}
	for _, mo := range mos {
		s.Items = append(s.Items, mo)
	}
	return s
}

// NewDnSet creates a dnSet holding the given dns
func NewDnSet(dns ...string) *ElementSet {
	return newValueSet(TagDnSet, TagDn, dns)
}

// NewClassIDSet creates a classIdSet holding the given class ids
func NewClassIDSet(ids ...string) *ElementSet {
	return newValueSet(TagClassIDSet, TagClassID, ids)
}

// NewIDSet creates an idSet holding the given ids
func NewIDSet(ids ...string) *ElementSet {
	return newValueSet(TagIDSet, TagID, ids)
}

// NewMethodSet creates a methodSet holding the given methods
func NewMethodSet(methods ...*ExternalMethod) *ElementSet {
	s := &ElementSet{tag: TagMethodSet}
	for _, m := range methods {
		s.Items = append(s.Items, m)
	}
	return s
}

func newValueSet(setTag, itemTag string, values []string) *ElementSet {
	s := &ElementSet{tag: setTag}
	for _, v := range values {
		s.Items = append(s.Items, &ValueElement{tag: itemTag, Value: v})
	}
	return s
}

// Tag returns the wire tag
func (s *ElementSet) Tag() string { return s.tag }

// ManagedObjects returns the managed objects held by the set
func (s *ElementSet) ManagedObjects() []*ManagedObject {
	var out []*ManagedObject
	for _, it := range s.Items {
		if mo, ok := it.(*ManagedObject); ok {
			out = append(out, mo)
		}
	}
	return out
}

// Values returns the values of the dn / classId / id items held by the set
func (s *ElementSet) Values() []string {
	var out []string
	for _, it := range s.Items {
		if v, ok := it.(*ValueElement); ok {
			out = append(out, v.Value)
		}
	}
	return out
}

// Methods returns the external methods held by the set
func (s *ElementSet) Methods() []*ExternalMethod {
	var out []*ExternalMethod
	for _, it := range s.Items {
		if m, ok := it.(*ExternalMethod); ok {
			out = append(out, m)
		}
	}
	return out
}

// WriteXML serializes the set
func (s *ElementSet) WriteXML(enc *xml.Encoder, opt WriteOption, tag string) error {
	if tag == "" {
		tag = s.Tag()
	}
	if err := writeStart(enc, tag, nil); err != nil {
		return err
	}
	for _, it := range s.Items {
		if err := it.WriteXML(enc, opt, ""); err != nil {
			return err
		}
	}
	return writeEnd(enc, tag)
}

func (s *ElementSet) loadXML(n *Node, ld *loader) {
	for _, cn := range n.Children {
		s.Items = append(s.Items, ld.load(cn))
	}
}

// ValueElement is a single valued element: dn, classId or id
type ValueElement struct {
	tag   string
	Value string
}

// NewDn creates a dn element
func NewDn(value string) *ValueElement { return &ValueElement{tag: TagDn, Value: value} }

// NewClassID creates a classId element
func NewClassID(value string) *ValueElement { return &ValueElement{tag: TagClassID, Value: value} }

// NewID creates an id element
func NewID(value string) *ValueElement { return &ValueElement{tag: TagID, Value: value} }

// Tag returns the wire tag
func (v *ValueElement) Tag() string { return v.tag }

// WriteXML serializes the element
func (v *ValueElement) WriteXML(enc *xml.Encoder, _ WriteOption, tag string) error {
	if tag == "" {
		tag = v.Tag()
	}
	var a attrs
	a.add("value", v.Value)
	if err := writeStart(enc, tag, a); err != nil {
		return err
	}
	return writeEnd(enc, tag)
}

func (v *ValueElement) loadXML(n *Node, _ *loader) {
	v.Value, _ = n.Attr("value")
}

// Method is a generic wrapper around a single external method
type Method struct {
	Inner *ExternalMethod
}

// Tag returns the wire tag
func (m *Method) Tag() string { return TagMethod }

// WriteXML serializes the wrapper
func (m *Method) WriteXML(enc *xml.Encoder, opt WriteOption, tag string) error {
	if tag == "" {
		tag = m.Tag()
	}
	if err := writeStart(enc, tag, nil); err != nil {
		return err
	}
	if m.Inner != nil {
		if err := m.Inner.WriteXML(enc, opt, ""); err != nil {
			return err
		}
	}
	return writeEnd(enc, tag)
}

func (m *Method) loadXML(n *Node, ld *loader) {
	for _, cn := range n.Children {
		if em, ok := ld.load(cn).(*ExternalMethod); ok {
			m.Inner = em
			return
		}
	}
}
